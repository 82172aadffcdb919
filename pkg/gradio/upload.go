// Copyright 2025 Kadir Pekel
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

package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/kadirpekel/hfspace/pkg/httpclient"
)

// MaxDownloadSize bounds Download.
const MaxDownloadSize = 32 << 20

// Upload sends a local file to the space and returns its server-side
// FileData.
func (c *Client) Upload(ctx context.Context, localPath string) (*FileData, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	name := filepath.Base(localPath)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("files", name)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+c.apiPrefix+"/upload", bytes.NewReader(body.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if err := httpclient.CheckResponse(resp); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", name, err)
	}
	defer resp.Body.Close()

	var paths []string
	if err := json.NewDecoder(resp.Body).Decode(&paths); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("upload of %s returned no paths", name)
	}

	fd := newFileData(paths[0])
	fd.OrigName = name
	fd.Size = int64(len(content))
	fd.MimeType = mime.TypeByExtension(filepath.Ext(name))
	return fd, nil
}

// Download fetches a result file and returns its bytes and MIME type.
func (c *Client) Download(ctx context.Context, fd *FileData) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FileURL(fd), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", fd.Path, err)
	}
	if err := httpclient.CheckResponse(resp); err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", fd.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", fd.Path, err)
	}
	if len(data) > MaxDownloadSize {
		return nil, "", fmt.Errorf("file %s exceeds %d bytes", fd.Path, MaxDownloadSize)
	}

	mimeType := fd.MimeType
	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(fd.Path)); byExt != "" {
			mimeType = byExt
		}
	}
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	return data, mimeType, nil
}
