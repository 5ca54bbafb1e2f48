// Package content fetches catalog data from the /data backend and decodes it
// according to the content type the backend declares.
package content

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/p-n-ai/pai-catalog/internal/curriculum"
)

// Fetcher is the read side of the catalog consumed by tree sessions.
type Fetcher interface {
	FetchResourceTypes(ctx context.Context) (curriculum.ResourceTypes, error)
	FetchChapter(ctx context.Context, p curriculum.Path) (curriculum.Chapter, error)
	FetchResources(ctx context.Context, p curriculum.Path) (curriculum.ResourceSet, error)
	FetchChapterList(ctx context.Context, p curriculum.Path) (curriculum.OrderedMap[curriculum.Entry], error)
}

// Client fetches catalog documents over HTTP.
type Client struct {
	baseURL string
	ext     string
	client  *http.Client
	cache   BodyCache
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithExtension selects the file extension requested from the backend
// ("lynx" or "json").
func WithExtension(ext string) Option {
	return func(c *Client) {
		c.ext = ext
	}
}

// WithCache puts a body cache in front of the backend.
func WithCache(cache BodyCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// NewClient creates a client reading from baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		ext:     "lynx",
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResourceTypesURL is the reference-data location.
func (c *Client) ResourceTypesURL() string {
	return c.KeystoneURL("resource_types")
}

// ChapterURL is the location of a chapter's info document.
func (c *Client) ChapterURL(p curriculum.Path) string {
	return c.chapterDir(p) + "/info." + c.ext
}

// ResourcesURL is the location of the resource set for p's topic and subtopic.
func (c *Client) ResourcesURL(p curriculum.Path) string {
	p = p.Normalize()
	name := "resources-" + p.Topic + "-" + p.Subtopic + "." + c.ext
	return c.chapterDir(p) + "/" + url.PathEscape(name)
}

// ChapterListURL is the location of a subject's chapter listing.
func (c *Client) ChapterListURL(p curriculum.Path) string {
	p = p.Normalize()
	return c.baseURL + "/data/grades/" + joinSegments(p.Grade, p.Board, p.Subject) + "/chapter_list." + c.ext
}

// KeystoneURL is the location of a shared reference document such as
// "subjects" or "html-grades_list".
func (c *Client) KeystoneURL(name string) string {
	return c.baseURL + "/data/keystone/" + name + "." + c.ext
}

func (c *Client) chapterDir(p curriculum.Path) string {
	p = p.Normalize()
	return c.baseURL + "/data/grades/" + joinSegments(p.Grade, p.Board, p.Subject, p.Chapter)
}

func joinSegments(segs ...string) string {
	escaped := make([]string, len(segs))
	for i, s := range segs {
		escaped[i] = url.PathEscape(s)
	}
	return strings.Join(escaped, "/")
}

// FetchResourceTypes loads the resource-kind reference data.
func (c *Client) FetchResourceTypes(ctx context.Context) (curriculum.ResourceTypes, error) {
	var types curriculum.ResourceTypes
	err := c.Get(ctx, c.ResourceTypesURL(), &types)
	return types, err
}

// FetchChapter loads the info document of the chapter addressed by p.
func (c *Client) FetchChapter(ctx context.Context, p curriculum.Path) (curriculum.Chapter, error) {
	var chapter curriculum.Chapter
	err := c.Get(ctx, c.ChapterURL(p), &chapter)
	return chapter, err
}

// FetchResources loads the resources of p's topic and subtopic.
func (c *Client) FetchResources(ctx context.Context, p curriculum.Path) (curriculum.ResourceSet, error) {
	var set curriculum.ResourceSet
	err := c.Get(ctx, c.ResourcesURL(p), &set)
	return set, err
}

// FetchChapterList loads the chapters of p's subject.
func (c *Client) FetchChapterList(ctx context.Context, p curriculum.Path) (curriculum.OrderedMap[curriculum.Entry], error) {
	var list curriculum.OrderedMap[curriculum.Entry]
	err := c.Get(ctx, c.ChapterListURL(p), &list)
	return list, err
}

// Get fetches u and decodes it into v. Every failure is a *FetchError. Only
// bodies that decode are cached.
func (c *Client) Get(ctx context.Context, u string, v any) error {
	if c.cache != nil && !IsFresh(ctx) {
		if entry, ok := c.cache.Get(ctx, u); ok {
			if err := Decode(entry.ContentType, bytes.NewReader(entry.Body), v); err == nil {
				return nil
			}
			slog.Warn("cached body no longer decodes, refetching", "url", u)
		}
	}

	contentType, body, err := c.fetch(ctx, u)
	if err != nil {
		return err
	}
	if err := Decode(contentType, bytes.NewReader(body), v); err != nil {
		return &FetchError{Kind: KindDecode, URL: u, Err: err}
	}
	if c.cache != nil {
		c.cache.Put(ctx, u, Entry{ContentType: contentType, Body: body})
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, u string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", nil, &FetchError{Kind: KindNetwork, URL: u, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, &FetchError{Kind: KindNetwork, URL: u, Err: fmt.Errorf("send request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, &FetchError{Kind: KindNetwork, URL: u, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, &FetchError{Kind: KindStatus, URL: u, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	contentType := resp.Header.Get("Content-Type")
	slog.Debug("content fetched", "url", u, "content_type", contentType, "bytes", len(body))
	return contentType, body, nil
}
