package infra

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// WatchExecutable signals once when the running binary is replaced on disk, so a deploy can trigger a graceful restart.
func WatchExecutable(ctx context.Context, interval time.Duration) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)

		exeFilename, err := os.Executable()
		if err != nil {
			log.WithError(err).Warn("cant resolve executable path for watch")
			return
		}
		stat, err := os.Stat(exeFilename)
		if err != nil {
			log.WithError(err).Warn("cant stat executable for watch")
			return
		}
		originalTime := stat.ModTime()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stat, err := os.Stat(exeFilename)
				if err != nil {
					continue
				}
				if !originalTime.Equal(stat.ModTime()) {
					log.WithField("path", exeFilename).Info("executable changed")
					ch <- struct{}{}
					return
				}
			}
		}
	}()
	return ch
}
