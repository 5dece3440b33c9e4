package server

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync"
)

//go:embed static/*
var staticFiles embed.FS

// staticAsset is an embedded file prepared once for serving.
type staticAsset struct {
	data        []byte
	contentType string
	etag        string
}

var (
	assetsMu sync.RWMutex
	assets   = map[string]*staticAsset{}
)

func loadAsset(name string) (*staticAsset, error) {
	assetsMu.RLock()
	asset, ok := assets[name]
	assetsMu.RUnlock()
	if ok {
		return asset, nil
	}

	data, err := fs.ReadFile(staticFiles, path.Join("static", name))
	if err != nil {
		return nil, fmt.Errorf("[server loadAsset] %s: %w", name, err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if strings.HasPrefix(contentType, "text/") && !strings.Contains(contentType, "charset=") {
		contentType += "; charset=utf-8"
	}
	sum := sha256.Sum256(data)
	asset = &staticAsset{data: data, contentType: contentType, etag: `"` + hex.EncodeToString(sum[:8]) + `"`}

	assetsMu.Lock()
	assets[name] = asset
	assetsMu.Unlock()
	return asset, nil
}

// StreamFile writes the embedded asset name. A browser already holding the current
// version gets 304 without a body.
func StreamFile(w http.ResponseWriter, r *http.Request, name string) error {
	asset, err := loadAsset(name)
	if err != nil {
		return err
	}

	w.Header().Set("ETag", asset.etag)
	if r.Header.Get("If-None-Match") == asset.etag {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}
	w.Header().Set("Content-Type", asset.contentType)
	if _, err := w.Write(asset.data); err != nil {
		return fmt.Errorf("[server StreamFile] writing %s: %w", name, err)
	}
	return nil
}
