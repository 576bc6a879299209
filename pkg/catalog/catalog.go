// Package catalog lists datasets from a DKAN-style provider-data catalog
// and discovers the downloadable resources to mirror.
package catalog

import (
	"net/url"
	"slices"
	"strings"
)

// Dataset is one catalog entry from the metastore dataset listing.
type Dataset struct {
	Identifier   string         `json:"identifier"`
	Title        string         `json:"title"`
	Theme        []string       `json:"theme"`
	Distribution []Distribution `json:"distribution"`
}

// Distribution is one downloadable rendition of a dataset.
type Distribution struct {
	DownloadURL string `json:"downloadURL"`
	MediaType   string `json:"mediaType"`
}

// Resource is one fetchable dataset distribution selected for mirroring.
// Identifier is stable across runs and names the resource's storage
// location; Name is the file name derived from the download URL.
type Resource struct {
	Identifier  string
	Name        string
	DownloadURL string
	MediaType   string
}

// Discover selects the resources to sync: every distribution of every
// dataset tagged with theme whose media type matches mediaType. Order
// follows catalog order and identical endpoints are not deduplicated.
func Discover(datasets []Dataset, theme, mediaType string) []Resource {
	var resources []Resource
	for _, ds := range datasets {
		if !slices.Contains(ds.Theme, theme) || len(ds.Distribution) == 0 {
			continue
		}
		for _, dist := range ds.Distribution {
			if dist.DownloadURL == "" || dist.MediaType != mediaType {
				continue
			}
			resources = append(resources, Resource{
				Identifier:  ds.Identifier,
				Name:        resourceName(dist.DownloadURL),
				DownloadURL: dist.DownloadURL,
				MediaType:   dist.MediaType,
			})
		}
	}
	return resources
}

// resourceName derives a local file name from a download URL: the final
// path segment, with any query string stripped.
func resourceName(downloadURL string) string {
	if u, err := url.Parse(downloadURL); err == nil && u.Path != "" {
		downloadURL = u.Path
	}
	if i := strings.LastIndexByte(downloadURL, '/'); i >= 0 {
		downloadURL = downloadURL[i+1:]
	}
	return downloadURL
}
