package infra

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs f and restarts it after a panic, maxPanics < 0 means forever.
func GoRecoverable(maxPanics int, id string, f func()) {
	defer func() {
		if err := recover(); err != nil {
			entry := log.WithFields(log.Fields{"job": id, "at": identifyPanic()})
			entry.Errorf("job panics with message: %v", err)
			if maxPanics == 0 {
				entry.Fatal("panics limit exceeded, exiting")
			}
			if maxPanics > 0 {
				maxPanics--
			}
			entry.WithField("panics_left", maxPanics).Debug("recovering job")
			go GoRecoverable(maxPanics, id, f)
		}
	}()
	f()
}

// Recover logs a panic of the calling goroutine instead of crashing the process.
func Recover(id string) {
	if err := recover(); err != nil {
		log.WithFields(log.Fields{"job": id, "at": identifyPanic()}).Errorf("recovered panic: %v", err)
	}
}

// WaitOrLog waits for done up to timeout and reports a goroutine that did not exit.
func WaitOrLog(done <-chan struct{}, timeout time.Duration, id string) bool {
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.WithField("job", id).Warn("job did not exit in time")
		return false
	}
}

func identifyPanic() string {
	var name, file string
	var line int
	var pc [16]uintptr

	n := runtime.Callers(3, pc[:])
	for _, pc := range pc[:n] {
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line = fn.FileLine(pc)
		name = fn.Name()
		if !strings.HasPrefix(name, "runtime.") {
			break
		}
	}

	switch {
	case name != "":
		return fmt.Sprintf("%v:%v", name, line)
	case file != "":
		return fmt.Sprintf("%v:%v", file, line)
	}

	return fmt.Sprintf("pc:%x", pc)
}
