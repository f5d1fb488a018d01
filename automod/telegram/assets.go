package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/editguard/editguard/automod/cachestore"
	"github.com/editguard/editguard/automod/dispatch"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// cachestore name for platform file IDs of uploaded assets
const FileIDCacheName = "media-file-id"

// upper bound on asset size; Bot API uploads are limited to 50MB
const maxAssetBytes = 50 * 1024 * 1024

// Media assets (deterrent and welcome videos), fetched at most once and then held immutably. Assets are referenced by URL (http or https) or local file path.
//
// After the first upload the platform assigns a file ID, which is kept in a cachestore so later sends (and other processes sharing the store) skip the upload.
type AssetCache struct {
	client *http.Client
	files  cachestore.CacheStore
	logger *slog.Logger

	lk    sync.Mutex
	blobs map[string][]byte
}

func NewAssetCache(client *http.Client, files cachestore.CacheStore, logger *slog.Logger) *AssetCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetCache{
		client: client,
		files:  files,
		logger: logger.With("component", "assets"),
		blobs:  make(map[string][]byte),
	}
}

// Loads assets ahead of time, so that a missing or unreachable asset is noticed at startup.
func (a *AssetCache) Prefetch(ctx context.Context, refs ...string) error {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, err := a.load(ctx, ref); err != nil {
			return err
		}
	}
	return nil
}

// Returns the file to send for an asset reference, and whether it is a previously-recorded file ID.
func (a *AssetCache) Resolve(ctx context.Context, ref string) (tgbotapi.RequestFileData, bool, error) {
	if a.files != nil {
		id, err := a.files.Get(ctx, FileIDCacheName, ref)
		if err != nil {
			a.logger.Warn("reading media file ID cache", "asset", ref, "err", err)
		} else if id != "" {
			return tgbotapi.FileID(id), true, nil
		}
	}
	b, err := a.load(ctx, ref)
	if err != nil {
		return nil, false, err
	}
	return tgbotapi.FileBytes{Name: path.Base(ref), Bytes: b}, false, nil
}

func (a *AssetCache) Remember(ctx context.Context, ref, fileID string) {
	if a.files == nil {
		return
	}
	if err := a.files.Set(ctx, FileIDCacheName, ref, fileID); err != nil {
		a.logger.Warn("writing media file ID cache", "asset", ref, "err", err)
	}
}

func (a *AssetCache) Forget(ctx context.Context, ref string) {
	if a.files == nil {
		return
	}
	if err := a.files.Purge(ctx, FileIDCacheName, ref); err != nil {
		a.logger.Warn("purging media file ID cache", "asset", ref, "err", err)
	}
}

func (a *AssetCache) load(ctx context.Context, ref string) ([]byte, error) {
	a.lk.Lock()
	b, ok := a.blobs[ref]
	a.lk.Unlock()
	if ok {
		return b, nil
	}

	var err error
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		b, err = a.fetch(ctx, ref)
	} else {
		b, err = readLocal(ref)
	}
	if err != nil {
		return nil, err
	}

	a.lk.Lock()
	// a concurrent load may have won; either copy is identical
	if prev, ok := a.blobs[ref]; ok {
		b = prev
	} else {
		a.blobs[ref] = b
	}
	a.lk.Unlock()
	a.logger.Info("loaded media asset", "asset", ref, "bytes", len(b))
	return b, nil
}

func (a *AssetCache) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, dispatch.Permanent(dispatch.ReasonBadRequest, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("fetching asset: HTTP status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, dispatch.Permanent(dispatch.ReasonBadRequest, err)
		}
		return nil, err
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading asset body: %w", err)
	}
	if len(b) > maxAssetBytes {
		return nil, dispatch.Permanent(dispatch.ReasonBadRequest, fmt.Errorf("asset too large: %s", u))
	}
	return b, nil
}

func readLocal(p string) ([]byte, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, dispatch.Permanent(dispatch.ReasonBadRequest, fmt.Errorf("reading asset: %w", err))
	}
	return b, nil
}
