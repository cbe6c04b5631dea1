// Copyright 2024 The vmstress Authors.
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

package log

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimited forwards to an underlying logger, dropping whatever exceeds
// one message per interval. Anomaly reporting needs a heartbeat, not a
// transcript; a misbehaving kernel delivering a bad event per fault must
// not turn the log into the bottleneck.
type rateLimited struct {
	sink  Logger
	limit *rate.Limiter
}

// Debugf implements Logger.Debugf.
func (r *rateLimited) Debugf(format string, v ...any) {
	if r.limit.Allow() {
		r.sink.Debugf(format, v...)
	}
}

// Infof implements Logger.Infof.
func (r *rateLimited) Infof(format string, v ...any) {
	if r.limit.Allow() {
		r.sink.Infof(format, v...)
	}
}

// Warningf implements Logger.Warningf.
func (r *rateLimited) Warningf(format string, v ...any) {
	if r.limit.Allow() {
		r.sink.Warningf(format, v...)
	}
}

// IsLogging implements Logger.IsLogging. The limiter is consulted only
// when a message is actually emitted, so level checks stay cheap.
func (r *rateLimited) IsLogging(level Level) bool {
	return r.sink.IsLogging(level)
}

// BasicRateLimitedLogger returns a Logger that logs to the global logger
// no more than once per the provided duration.
func BasicRateLimitedLogger(every time.Duration) Logger {
	return RateLimitedLogger(Log(), every)
}

// RateLimitedLogger returns a Logger that logs to the provided logger no
// more than once per the provided duration.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return &rateLimited{
		sink:  logger,
		limit: rate.NewLimiter(rate.Every(every), 1),
	}
}
