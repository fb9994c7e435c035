package biz

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"imagescan/internal/pkg/ocr"
	"imagescan/internal/pkg/vision"
)

type fakeRules struct {
	patterns map[string][]string
	err      error
}

func (f *fakeRules) ListPatterns(_ context.Context, guildID string) ([]string, error) {
	return f.patterns[guildID], f.err
}

func (f *fakeRules) CountPatterns(_ context.Context, guildID string) (int64, error) {
	return int64(len(f.patterns[guildID])), f.err
}

type fakeGuilds struct {
	mu         sync.Mutex
	configs    map[string]*GuildConfig
	entitled   bool
	models     string
	filters    []*ModelFilter
	increments int
	resets     int
}

func (f *fakeGuilds) GetConfig(_ context.Context, guildID string) (*GuildConfig, error) {
	return f.configs[guildID], nil
}

func (f *fakeGuilds) Entitled(context.Context, string) (bool, error) {
	return f.entitled, nil
}

func (f *fakeGuilds) IncrementCalls(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments++
	return nil
}

func (f *fakeGuilds) ResetCalls(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeGuilds) ActiveModels(context.Context) (string, error) {
	return f.models, nil
}

func (f *fakeGuilds) ListFilters(context.Context, string) ([]*ModelFilter, error) {
	return f.filters, nil
}

type fakeCache struct {
	mu      sync.Mutex
	rows    map[string]*CachedResult
	upserts int
	similar *CachedResult
	lookups int
}

func newFakeCache() *fakeCache {
	return &fakeCache{rows: make(map[string]*CachedResult)}
}

func (f *fakeCache) Get(_ context.Context, hash string) (*CachedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[hash]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeCache) FindSimilar(context.Context, int64, int) (*CachedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.similar, nil
}

func (f *fakeCache) Upsert(_ context.Context, result *CachedResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	row, ok := f.rows[result.Hash]
	if !ok {
		cp := *result
		f.rows[result.Hash] = &cp
		return nil
	}
	if result.OCRFinal || !row.OCRFinal {
		row.OCR = result.OCR
	}
	row.OCRFinal = row.OCRFinal || result.OCRFinal
	if result.API != nil {
		row.API = result.API
	}
	if result.PHash != nil {
		row.PHash = result.PHash
	}
	return nil
}

type fakeDownloader struct {
	data []byte
	err  error
}

func (f *fakeDownloader) Download(context.Context, string) ([]byte, error) {
	return f.data, f.err
}

type fakeEngine struct {
	text   string
	status ocr.ExitStatus
	err    error
	calls  atomic.Int32
}

func (f *fakeEngine) Extract(context.Context, []byte) (*ocr.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &ocr.Result{Text: f.text, Status: f.status, ExitCode: int(f.status)}, nil
}

type fakeClassifier struct {
	body   string
	status int
	err    error
	calls  atomic.Int32
}

func (f *fakeClassifier) Classify(context.Context, []byte, string, string) (*vision.Response, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &vision.Response{StatusCode: f.status, Body: []byte(f.body)}, nil
}

type sentPost struct {
	channelID string
	msg       *OutboundMessage
}

type fakePlatform struct {
	mu        sync.Mutex
	deleteErr error
	postErr   error
	deletes   []string
	posts     []sentPost
}

func (f *fakePlatform) DeleteMessage(_ context.Context, _ string, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, messageID)
	return f.deleteErr
}

func (f *fakePlatform) PostMessage(_ context.Context, channelID string, msg *OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, sentPost{channelID: channelID, msg: msg})
	return f.postErr
}

func (f *fakePlatform) postsTo(channelID string) []*OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*OutboundMessage
	for _, p := range f.posts {
		if p.channelID == channelID {
			out = append(out, p.msg)
		}
	}
	return out
}

var errBoom = errors.New("boom")
