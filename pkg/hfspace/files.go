package hfspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) addFilesTool() {
	t := mcp.NewTool(FilesToolName,
		mcp.WithDescription("A list of available file and resources. "+
			"If the User requests things like 'most recent image' or 'the audio' use "+
			"this tool to identify the intended resource. "+
			"This tool returns 'resource uri', 'name', 'size', 'last modified' and 'mime type' in a markdown table"),
	)
	s.mcp.AddTool(t, s.instrument(FilesToolName, s.handleFiles))
}

type fileEntry struct {
	name     string
	size     int64
	modified string
	mimeType string
}

func (s *Server) handleFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.listFiles()
	if err != nil {
		return InternalError(err), nil
	}
	return mcp.NewToolResultText(formatFiles(s.workDir, entries)), nil
}

// listFiles returns the regular, non-hidden files directly inside the
// working directory.
func (s *Server) listFiles() ([]fileEntry, error) {
	dirEntries, err := os.ReadDir(s.workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read work dir: %w", err)
	}

	var files []fileEntry
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, fileEntry{
			name:     de.Name(),
			size:     info.Size(),
			modified: info.ModTime().UTC().Format("2006-01-02 15:04:05"),
			mimeType: mimeTypeOf(de.Name()),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func formatFiles(dir string, files []fileEntry) string {
	if len(files) == 0 {
		return fmt.Sprintf("No files available in %s", dir)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Files available in %s:\n\n", dir)
	sb.WriteString("| Resource URI | Name | Size | Last Modified | MIME Type |\n")
	sb.WriteString("|--------------|------|------|---------------|-----------|\n")
	for _, f := range files {
		uri := "file://" + filepath.ToSlash(filepath.Join(dir, f.name))
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n", uri, f.name, formatSize(f.size), f.modified, f.mimeType)
	}
	return sb.String()
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
