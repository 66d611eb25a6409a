package ytdlp

import "strings"

// Info is the subset of `yt-dlp --dump-single-json` output the resolver uses.
type Info struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Extractor        string            `json:"extractor"`
	Duration         float64           `json:"duration"`
	URL              string            `json:"url"`
	Ext              string            `json:"ext"`
	HTTPHeaders      map[string]string `json:"http_headers"`
	RequestedFormats []Format          `json:"requested_formats"`
}

// Format is one entry of requested_formats.
type Format struct {
	FormatID    string            `json:"format_id"`
	URL         string            `json:"url"`
	Ext         string            `json:"ext"`
	VCodec      string            `json:"vcodec"`
	ACodec      string            `json:"acodec"`
	HTTPHeaders map[string]string `json:"http_headers"`
}

// HasVideo reports whether the format carries a video track.
func (f Format) HasVideo() bool {
	return f.VCodec != "" && f.VCodec != "none"
}

// StreamURLs returns the direct URLs to fetch. Split formats come first
// video then audio, matching the order yt-dlp selected them in.
func (i *Info) StreamURLs() []string {
	if len(i.RequestedFormats) > 0 {
		formats := make([]Format, 0, len(i.RequestedFormats))
		for _, f := range i.RequestedFormats {
			if f.URL != "" {
				formats = append(formats, f)
			}
		}
		// put the video-bearing format first so it maps to input 0
		if len(formats) == 2 && !formats[0].HasVideo() && formats[1].HasVideo() {
			formats[0], formats[1] = formats[1], formats[0]
		}
		urls := make([]string, 0, len(formats))
		for _, f := range formats {
			urls = append(urls, f.URL)
		}
		if len(urls) > 0 {
			return urls
		}
	}
	if i.URL != "" {
		return []string{i.URL}
	}
	return nil
}

// Headers merges the request headers yt-dlp reports as required.
func (i *Info) Headers() map[string]string {
	out := make(map[string]string, len(i.HTTPHeaders))
	for k, v := range i.HTTPHeaders {
		out[k] = v
	}
	for _, f := range i.RequestedFormats {
		for k, v := range f.HTTPHeaders {
			out[k] = v
		}
	}
	return out
}

// CleanTitle strips quote characters that break Content-Disposition values.
func CleanTitle(title string) string {
	title = strings.NewReplacer(`"`, "", "'", "").Replace(strings.TrimSpace(title))
	if title == "" {
		return "video"
	}
	return title
}
