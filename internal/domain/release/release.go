package release

import "encoding/json"

// Release is the subset of the GitHub release payload the updater uses.
type Release struct {
	// TagName is the version identifier of the release, e.g. "v1.6.0".
	TagName string `json:"tag_name"`
	// Assets are the files attached to the release, in API order.
	Assets []Asset `json:"assets"`
}

// UnmarshalJSON decodes a release, keeping zero values for fields of the wrong type.
// Only a body that is not a JSON object is an error.
func (r *Release) UnmarshalJSON(data []byte) error {
	var raw struct {
		TagName json.RawMessage `json:"tag_name"`
		Assets  json.RawMessage `json:"assets"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Release{TagName: stringField(raw.TagName)}

	var assets []Asset
	if err := json.Unmarshal(raw.Assets, &assets); err == nil {
		r.Assets = assets
	}

	return nil
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	// Name is the asset filename as shown on the release page.
	Name string `json:"name"`
	// BrowserDownloadURL is the public download link; it may be empty.
	BrowserDownloadURL string `json:"browser_download_url"`
	// Size is the asset size in bytes as reported by the API.
	Size int64 `json:"size"`
}

// UnmarshalJSON never fails: a malformed entry becomes an asset without a
// download link, which the downloader logs and skips.
func (a *Asset) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name               json.RawMessage `json:"name"`
		BrowserDownloadURL json.RawMessage `json:"browser_download_url"`
		Size               json.RawMessage `json:"size"`
	}

	*a = Asset{}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil //nolint:nilerr // Not an object, keep the zero asset.
	}

	a.Name = stringField(raw.Name)
	a.BrowserDownloadURL = stringField(raw.BrowserDownloadURL)

	if err := json.Unmarshal(raw.Size, &a.Size); err != nil {
		a.Size = 0
	}

	return nil
}

// HasDownloadURL reports whether the asset can be downloaded.
func (a *Asset) HasDownloadURL() bool {
	return a.BrowserDownloadURL != ""
}

// DownloadableAssets returns the assets with a download URL, preserving order.
func (r *Release) DownloadableAssets() []Asset {
	result := make([]Asset, 0, len(r.Assets))

	for _, asset := range r.Assets {
		if asset.HasDownloadURL() {
			result = append(result, asset)
		}
	}

	return result
}

// stringField returns the JSON string in raw, or "" when raw is absent or not a string.
func stringField(raw json.RawMessage) string {
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}

	return value
}
