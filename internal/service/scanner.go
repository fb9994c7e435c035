package service

import (
	"context"
	"sync"

	"imagescan/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

type imageScanner interface {
	Scan(ctx context.Context, img *biz.IncomingImage) (*biz.ScanOutcome, error)
}

// ScannerService is the dispatch point for inbound chat messages.
type ScannerService struct {
	uc  imageScanner
	wg  sync.WaitGroup
	log *log.Helper
}

// NewScannerService creates a new ScannerService.
func NewScannerService(uc *biz.ScanUsecase, logger log.Logger) *ScannerService {
	return &ScannerService{uc: uc, log: log.NewHelper(logger)}
}

// OnMessageCreate starts one independent scan per image in msg and returns
// without waiting for them. Candidates without an image extension are
// dropped here. It reports how many scans were started.
func (s *ScannerService) OnMessageCreate(msg *biz.Message) int {
	started := 0
	for _, img := range biz.ImagesFromMessage(msg) {
		if !biz.HasImageExtension(img.SourceURL) {
			continue
		}
		s.wg.Add(1)
		go s.scan(img)
		started++
	}
	return started
}

// Wait blocks until every started scan has finished.
func (s *ScannerService) Wait() {
	s.wg.Wait()
}

func (s *ScannerService) scan(img *biz.IncomingImage) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("scan of %s panicked: %v", img.SourceURL, r)
		}
	}()

	// Scans are not cancelled once started.
	out, err := s.uc.Scan(context.Background(), img)
	if err != nil {
		s.log.Warnf("scan of %s stopped: %v", img.SourceURL, err)
		return
	}
	if out.MatchSource != biz.MatchSourceNone {
		s.log.Infof("scan %s: message %s matched %q via %s, action %s",
			out.ScanID, img.MessageID, out.MatchedRule, out.MatchSource, out.Action)
	}
}
