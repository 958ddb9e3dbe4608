// Package endpoints loads named sets of pipeline descriptors from YAML
// files, so endpoint shapes can live in configuration instead of code.
package endpoints

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/reqpipe/reqpipe/pipeline"
)

// File is the on-disk shape of an endpoint set.
type File struct {
	Endpoints []Endpoint `yaml:"endpoints"`
}

// Endpoint is one declarative endpoint entry. Zero values fall back to
// the pipeline defaults: [200,300) accepted statuses and an expected
// application/json response.
type Endpoint struct {
	Name                 string            `yaml:"name"`
	Method               string            `yaml:"method"`
	BaseURL              string            `yaml:"base_url"`
	Path                 string            `yaml:"path"`
	Query                map[string]string `yaml:"query"`
	Headers              map[string]string `yaml:"headers"`
	Accept               []int             `yaml:"accept"`
	ContentType          string            `yaml:"content_type"`
	SkipContentTypeCheck bool              `yaml:"skip_content_type_check"`
	CacheKey             string            `yaml:"cache_key"`
}

// Load reads the file at path and returns its descriptors keyed by
// endpoint name.
func Load(path string) (map[string]*pipeline.Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening endpoints file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes an endpoint set and builds a validated descriptor per
// entry. Unnamed or duplicate-named entries are an error.
func Parse(r io.Reader) (map[string]*pipeline.Descriptor, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding endpoints file: %w", err)
	}

	descriptors := make(map[string]*pipeline.Descriptor, len(file.Endpoints))
	for _, ep := range file.Endpoints {
		if ep.Name == "" {
			return nil, fmt.Errorf("endpoint %q: name must not be empty", ep.Path)
		}
		if _, ok := descriptors[ep.Name]; ok {
			return nil, fmt.Errorf("duplicate endpoint name %q", ep.Name)
		}

		d, err := ep.descriptor()
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}
		descriptors[ep.Name] = d
	}

	return descriptors, nil
}

func (ep Endpoint) descriptor() (*pipeline.Descriptor, error) {
	var opts []pipeline.DescriptorOption

	// Maps carry no order; sort keys so the composed URL is stable.
	for _, k := range sortedKeys(ep.Query) {
		opts = append(opts, pipeline.WithQuery(k, ep.Query[k]))
	}
	if len(ep.Headers) > 0 {
		opts = append(opts, pipeline.WithHeaders(ep.Headers))
	}
	if len(ep.Accept) > 0 {
		opts = append(opts, pipeline.WithAcceptedStatus(ep.Accept...))
	}
	if ep.ContentType != "" {
		opts = append(opts, pipeline.WithExpectedContentType(ep.ContentType))
	}
	if ep.SkipContentTypeCheck {
		opts = append(opts, pipeline.WithoutContentTypeCheck())
	}
	if ep.CacheKey != "" {
		opts = append(opts, pipeline.WithCacheKey(ep.CacheKey))
	}

	return pipeline.NewDescriptor(ep.Method, ep.BaseURL, ep.Path, opts...)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
