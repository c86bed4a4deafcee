// Copyright 2020 the tempora-go authors
// This file is part of the tempora-go library in the Tempora project.
//
// This source code is licensed under the MIT license found in the LICENSE file in the root directory of this source tree.
// The above notice should be included in all copies or substantial portions of the software.

package logfields

import (
	"github.com/orbs-network/govnr"
	"github.com/orbs-network/scribe/log"
)

type errorer struct {
	logger log.Logger
}

func (e *errorer) Error(err error) {
	e.logger.Error("recovered panic", log.Error(err))
}

// GovnrErrorer adapts a logger to govnr's panic reporting interface.
func GovnrErrorer(logger log.Logger) govnr.Errorer {
	return &errorer{logger}
}
