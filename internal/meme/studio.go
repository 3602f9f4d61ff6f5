package meme

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	errs "github.com/iamwavecut/memequiz/internal/errors"
	"github.com/iamwavecut/memequiz/internal/infra"
)

type Downloader interface {
	DownloadFile(ctx context.Context, fileID string, dst string) error
}

// Studio keeps per-user photo uploads and composed memes under one directory.
type Studio struct {
	dir        string
	downloader Downloader
}

func NewStudio(dir string, downloader Downloader) *Studio {
	return &Studio{dir: dir, downloader: downloader}
}

// SavePhoto downloads the uploaded photo into the user's folder and returns its path.
func (s *Studio) SavePhoto(ctx context.Context, userID int64, fileID string) (string, error) {
	userDir, err := infra.GetWorkDir(s.dir, strconv.FormatInt(userID, 10))
	if err != nil {
		return "", errors.Wrap(errs.ErrStorage, err.Error())
	}
	path := filepath.Join(userDir, uuid.New()+".jpg")
	if err := s.downloader.DownloadFile(ctx, fileID, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// Compose overlays caption onto the stored photo and returns the path of the result.
func (s *Studio) Compose(ctx context.Context, photoPath string, caption string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(photoPath)
	if err != nil {
		return "", errors.Wrap(errs.ErrNotFound, err.Error())
	}
	defer src.Close()

	outPath := photoPath[:len(photoPath)-len(filepath.Ext(photoPath))] + "_meme.jpg"
	dst, err := os.Create(outPath)
	if err != nil {
		return "", errors.Wrap(errs.ErrStorage, err.Error())
	}
	if err := Overlay(src, caption, dst); err != nil {
		_ = dst.Close()
		_ = os.Remove(outPath)
		return "", err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(outPath)
		return "", errors.Wrap(errs.ErrStorage, err.Error())
	}
	return outPath, nil
}

// Discard removes files the session no longer references, missing files are fine.
func (s *Studio) Discard(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.getLogEntry().WithField("path", p).WithError(err).Warn("cant remove meme file")
		}
	}
}

func (s *Studio) getLogEntry() *log.Entry {
	return log.WithField("object", "Studio")
}
