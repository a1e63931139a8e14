// Package pluginregistry maps a URI's file extension to the decoder
// plugin that can handle it, falling back to a fuzzy match against the
// known extensions when the exact one isn't registered — e.g. a
// misreported ".mp3a" content type. The static-map-plus-fuzzy-fallback
// shape is grounded on the teacher's internal/search package (a plain
// map of indexed fields with lithammer/fuzzysearch as the fallback
// ranker), narrowed here to extensions instead of song metadata.
package pluginregistry

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/outpost-audio/bridge/internal/decoder"
)

// Plugin is the minimal interface a decoder plugin must satisfy to be
// driven by the registry: decode uri end to end against bridge,
// returning once the stream ends or a STOP command is observed.
type Plugin interface {
	Name() string
	Run(bridge *decoder.Bridge, uri string) error
}

// Registry resolves a URI to the plugin that should decode it.
type Registry struct {
	byExt map[string]Plugin
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{byExt: make(map[string]Plugin)}
}

// Register associates a plugin with one or more lowercase file
// extensions (without the leading dot).
func (r *Registry) Register(p Plugin, extensions ...string) {
	for _, ext := range extensions {
		r.byExt[strings.ToLower(ext)] = p
	}
}

// Resolve finds the plugin for uri's extension, falling back to the
// closest known extension by edit distance when there is no exact
// match — e.g. a stray trailing character or a near-miss extension.
func (r *Registry) Resolve(uri string) (Plugin, error) {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(uri)), ".")
	if ext == "" {
		return nil, fmt.Errorf("pluginregistry: uri %q has no extension", uri)
	}

	if p, ok := r.byExt[ext]; ok {
		return p, nil
	}

	known := make([]string, 0, len(r.byExt))
	for k := range r.byExt {
		known = append(known, k)
	}

	matches := fuzzy.RankFindFold(ext, known)
	if len(matches) == 0 {
		// the extension may instead carry extra characters around a
		// known one, e.g. "mp3a" for "mp3".
		best, bestDist := "", -1
		for _, k := range known {
			if d := fuzzy.RankMatchFold(k, ext); d >= 0 && (bestDist < 0 || d < bestDist) {
				best, bestDist = k, d
			}
		}
		if bestDist >= 0 {
			return r.byExt[best], nil
		}
		return nil, fmt.Errorf("pluginregistry: no decoder plugin for extension %q", ext)
	}
	sort.Sort(matches)
	return r.byExt[matches[0].Target], nil
}
