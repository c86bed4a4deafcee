package metric

import "github.com/tempora-network/tempora-go/config"

func RegisterConfigIndicators(metricRegistry Registry, kernelConfig config.KernelConfig) {
	version := config.GetVersion()

	metricRegistry.NewText("Version.Semantic", version.Semantic)
	metricRegistry.NewText("Version.Commit", version.Commit)
	metricRegistry.NewText("ContentStore.DataDir", kernelConfig.ContentStoreDataDir())
}
