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
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type testWriter struct {
	lines []string
}

func (w *testWriter) Write(b []byte) (int, error) {
	w.lines = append(w.lines, string(b))
	return len(b), nil
}

func TestLevelGating(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}

	l.Debugf("should be dropped")
	l.Infof("info line")
	l.Warningf("warning line")

	out := strings.Join(tw.lines, "")
	if strings.Contains(out, "should be dropped") {
		t.Errorf("debug output emitted at info level: %q", out)
	}
	if !strings.Contains(out, "info line") || !strings.Contains(out, "warning line") {
		t.Errorf("expected info and warning output, got %q", out)
	}

	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = false after SetLevel(Debug)")
	}
}

func TestJSONEmitter(t *testing.T) {
	tw := &testWriter{}
	e := JSONEmitter{Writer: &Writer{Next: tw}}
	e.Emit(0, Info, time.Now(), "hello %d", 42)

	if len(tw.lines) == 0 {
		t.Fatalf("nothing emitted")
	}
	var decoded jsonLog
	if err := json.Unmarshal([]byte(strings.TrimSpace(tw.lines[0])), &decoded); err != nil {
		t.Fatalf("unmarshalling %q: %v", tw.lines[0], err)
	}
	if decoded.Msg != "hello 42" {
		t.Errorf("msg = %q, want %q", decoded.Msg, "hello 42")
	}
	if decoded.Level != Info {
		t.Errorf("level = %v, want %v", decoded.Level, Info)
	}
}

func TestGoogleEmitterFormat(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{Writer: &Writer{Next: tw}}
	e.Emit(0, Warning, time.Date(2024, 6, 1, 12, 30, 45, 123456000, time.UTC), "boom")

	out := strings.Join(tw.lines, "")
	if !strings.HasPrefix(out, "W0601 12:30:45.123456") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "] boom") {
		t.Errorf("missing message: %q", out)
	}
}

func TestMultiEmitter(t *testing.T) {
	tw1 := &testWriter{}
	tw2 := &testWriter{}
	me := MultiEmitter{
		GoogleEmitter{Writer: &Writer{Next: tw1}},
		JSONEmitter{Writer: &Writer{Next: tw2}},
	}
	l := &BasicLogger{Level: Info, Emitter: &me}
	l.Infof("fan out")

	if out := strings.Join(tw1.lines, ""); !strings.Contains(out, "fan out") {
		t.Errorf("first emitter missed the message: %q", out)
	}
	if out := strings.Join(tw2.lines, ""); !strings.Contains(out, "fan out") {
		t.Errorf("second emitter missed the message: %q", out)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	base := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(base, time.Hour)

	rl.Infof("first")
	rl.Infof("second") // suppressed

	out := strings.Join(tw.lines, "")
	if !strings.Contains(out, "first") {
		t.Errorf("first message suppressed: %q", out)
	}
	if strings.Contains(out, "second") {
		t.Errorf("second message not rate limited: %q", out)
	}
}
