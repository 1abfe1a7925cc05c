// Package config loads the server's configuration: the shared folders to
// index, the network interface/port to serve on, and the per-renderer DIDL
// presentation flags spec §6 names.
//
// This is plain stdlib flag parsing rather than a third-party loader: the
// spec scopes configuration out of the control-point-facing surface
// entirely (§1), and nothing in the retrieved example pack pulls in a
// structured config/flags library (e.g. cobra/viper) to ground one here.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// RendererConfig holds the DIDL presentation flags for one named renderer
// profile (spec §6: per-renderer titleInsteadOfName/hideFileExtension).
type RendererConfig struct {
	Name               string
	TitleInsteadOfName bool
	HideFileExtension  bool
}

// Config is the full set of values spec §6 names.
type Config struct {
	ServerName         string
	Folders            []string
	ServerPort         int
	ServerInterface    string
	GenerateThumbnails bool
	LogFile            string
	LogLevel           string
	DatabasePath       string
	ThumbnailDir       string
	RendererDir        string
	DefaultRenderer    string
	Renderers          map[string]RendererConfig
}

// Parse builds a Config from command-line flags, using args[1:] semantics
// (pass flag.CommandLine.Args() style input; typically os.Args[1:]).
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("slms", flag.ContinueOnError)

	serverName := fs.String("serverName", "slms", "friendly name announced over SSDP/UPnP")
	folders := fs.String("folders", "", "comma-separated list of shared directories to index")
	serverPort := fs.Int("serverPort", 0, "TCP port to serve HTTP/UPnP on (0 = pick automatically)")
	serverInterface := fs.String("serverInterface", "", "network interface to serve SSDP on (empty = all up multicast-capable interfaces)")
	generateThumbnails := fs.Bool("generateThumbnails", true, "thumbnail generation switch (recorded only; no thumbnails are generated)")
	logFile := fs.String("logFile", "", "log file path (recorded only; the slms command does not read it)")
	logLevel := fs.String("logLevel", "info", "minimum log level: debug, info, warning, error (recorded only; the slms command does not read it)")
	databasePath := fs.String("databasePath", "slms.index.xml", "path to the on-disk library index")
	thumbnailDir := fs.String("thumbnailDir", "", "thumbnail directory (recorded only; no thumbnails are generated)")
	rendererDir := fs.String("rendererDir", "", "directory containing per-renderer profile files")
	defaultRenderer := fs.String("defaultRenderer", "", "renderer profile name to use when a client isn't matched")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerName:         *serverName,
		ServerPort:         *serverPort,
		ServerInterface:    *serverInterface,
		GenerateThumbnails: *generateThumbnails,
		LogFile:            *logFile,
		LogLevel:           *logLevel,
		DatabasePath:       *databasePath,
		ThumbnailDir:       *thumbnailDir,
		RendererDir:        *rendererDir,
		DefaultRenderer:    *defaultRenderer,
		Renderers:          make(map[string]RendererConfig),
	}
	if *folders != "" {
		for _, f := range strings.Split(*folders, ",") {
			f = strings.TrimSpace(f)
			if f != "" {
				cfg.Folders = append(cfg.Folders, f)
			}
		}
	}
	if len(cfg.Folders) == 0 {
		return nil, fmt.Errorf("config: at least one shared folder is required (-folders)")
	}

	if *rendererDir != "" {
		renderers, err := LoadRenderers(*rendererDir)
		if err != nil {
			return nil, fmt.Errorf("config: loading renderer profiles from %q: %w", *rendererDir, err)
		}
		cfg.Renderers = renderers
	}
	return cfg, nil
}

// LoadRenderers reads one renderer profile per "*.renderer" file in dir, per
// spec §6's per-renderer key set (modeled on
// original_source/src/configuration/rendererconfiguration.rs). Each file is
// "key=value" lines; the renderer's Name is its filename without extension.
// A missing dir is not an error: it simply yields no profiles.
func LoadRenderers(dir string) (map[string]RendererConfig, error) {
	renderers := make(map[string]RendererConfig)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return renderers, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".renderer" {
			continue
		}
		rc, err := parseRendererFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		rc.Name = strings.TrimSuffix(e.Name(), ".renderer")
		renderers[rc.Name] = rc
	}
	return renderers, nil
}

func parseRendererFile(path string) (RendererConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return RendererConfig{}, err
	}
	defer f.Close()

	var rc RendererConfig
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "titleInsteadOfName":
			rc.TitleInsteadOfName, _ = strconv.ParseBool(value)
		case "hideFileExtension":
			rc.HideFileExtension, _ = strconv.ParseBool(value)
		}
	}
	return rc, scanner.Err()
}

// SelectRenderer implements the spec §6 renderer-selection rule: match a
// Control Point's User-Agent header against the configured renderer
// profile names by a case-insensitive substring (renderer User-Agent
// strings vary in case across vendors/firmware revisions), preferring the
// longest (most specific) name match and breaking further ties
// alphabetically for determinism, falling back to DefaultRenderer and then
// the zero-value profile if nothing matches.
func SelectRenderer(renderers map[string]RendererConfig, defaultName, userAgent string) RendererConfig {
	if userAgent != "" {
		ua := strings.ToLower(userAgent)
		names := make([]string, 0, len(renderers))
		for name := range renderers {
			if name != "" && strings.Contains(ua, strings.ToLower(name)) {
				names = append(names, name)
			}
		}
		sort.Slice(names, func(i, j int) bool {
			if len(names[i]) != len(names[j]) {
				return len(names[i]) > len(names[j])
			}
			return names[i] < names[j]
		})
		if len(names) > 0 {
			return renderers[names[0]]
		}
	}
	if rc, ok := renderers[defaultName]; ok {
		return rc
	}
	return RendererConfig{}
}
