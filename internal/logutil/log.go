// Copyright 2021 TiKV Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logutil wraps pingcap/log's global *zap.Logger so call sites
// across the executor share one logger without each carrying its own.
package logutil

import (
	"context"

	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// SetGlobalLogger replaces the process-wide logger, for embedding
// applications that want the executor's logs folded into their own zap
// config.
func SetGlobalLogger(l *zap.Logger) {
	log.ReplaceGlobals(l, nil)
}

// BgLogger returns the package-scoped logger for call sites with no context.
func BgLogger() *zap.Logger {
	return log.L()
}

// Logger returns a logger; ctx is accepted for call-site symmetry with
// tracing-aware loggers even though this implementation ignores it.
func Logger(ctx context.Context) *zap.Logger {
	return log.L()
}
