package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"tempo/internal/analysis"
	"tempo/internal/config"
	"tempo/internal/library"
	"tempo/internal/logging"
	"tempo/internal/protocol"
	"tempo/internal/services"
	"tempo/internal/tags"
)

// AnalysisStatus is the analysis slice's state.
type AnalysisStatus string

const (
	AnalysisReady AnalysisStatus = "ready"
	AnalysisBusy  AnalysisStatus = "busy"
)

// TransitionAnalysis validates a status change. busy to busy is rejected so
// only one analysis runs at a time.
func TransitionAnalysis(from, to AnalysisStatus) (AnalysisStatus, error) {
	if from == to || (to != AnalysisReady && to != AnalysisBusy) {
		return from, services.Wrap(services.ErrIllegalTransition, "client", "analysis",
			fmt.Sprintf("%s -> %s", from, to), nil)
	}
	return to, nil
}

// Result describes one track analysis.
type Result struct {
	TrackID string
	BPM     int
	Skipped bool
}

// Failure records a track that could not be analyzed.
type Failure struct {
	TrackID string
	Err     error
}

// Summary totals a playlist analysis.
type Summary struct {
	Analyzed int
	Skipped  int
	Failed   int
	Failures []Failure
}

// AnalysisSlice detects track tempos and writes them back as BPM tags.
type AnalysisSlice struct {
	msg       Messenger
	timeouts  config.Timeouts
	decoder   analysis.Decoder
	detector  analysis.Detector
	userEmail string
	logger    *slog.Logger

	library *LibrarySlice
	server  *ServerSlice

	mu        sync.Mutex
	status    AnalysisStatus
	current   string
	running   bool
	holds     int
	observers []func(AnalysisStatus)
}

func newAnalysisSlice(msg Messenger, timeouts config.Timeouts, decoder analysis.Decoder, detector analysis.Detector, userEmail string, logger *slog.Logger) *AnalysisSlice {
	return &AnalysisSlice{
		msg:       msg,
		timeouts:  timeouts,
		decoder:   decoder,
		detector:  detector,
		userEmail: userEmail,
		logger:    logging.NewComponentLogger(logger, "analysis-slice"),
		status:    AnalysisReady,
	}
}

// Status returns the current status and the track being analyzed. The
// status is busy while an analysis runs or while a library write holds the
// pipeline; current is empty in the latter case.
func (a *AnalysisSlice) Status() (AnalysisStatus, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status, a.current
}

// Held reports whether a library write is holding the pipeline.
func (a *AnalysisSlice) Held() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.holds > 0
}

// OnStatus registers fn for every status change.
func (a *AnalysisSlice) OnStatus(fn func(AnalysisStatus)) {
	a.mu.Lock()
	a.observers = append(a.observers, fn)
	a.mu.Unlock()
}

// setStatusLocked records next and returns the observers to notify once the
// lock is released.
func (a *AnalysisSlice) setStatusLocked(next AnalysisStatus) []func(AnalysisStatus) {
	a.status = next
	return slices.Clone(a.observers)
}

func notifyAnalysis(observers []func(AnalysisStatus), status AnalysisStatus) {
	for _, fn := range observers {
		fn(status)
	}
}

// hold keeps the pipeline busy while a library write is in flight. It fails
// if an analysis is already running.
func (a *AnalysisSlice) hold() (func(), error) {
	a.mu.Lock()
	if a.running {
		current := a.current
		a.mu.Unlock()
		return nil, services.Wrap(services.ErrIllegalTransition, "client", "write library",
			"analysis of "+current+" in progress", nil)
	}
	a.holds++
	var observers []func(AnalysisStatus)
	if a.holds == 1 {
		next, err := TransitionAnalysis(a.status, AnalysisBusy)
		if err == nil {
			observers = a.setStatusLocked(next)
		}
	}
	a.mu.Unlock()
	notifyAnalysis(observers, AnalysisBusy)

	var once sync.Once
	return func() {
		once.Do(a.release)
	}, nil
}

func (a *AnalysisSlice) release() {
	a.mu.Lock()
	a.holds--
	var observers []func(AnalysisStatus)
	if a.holds == 0 && !a.running {
		next, err := TransitionAnalysis(a.status, AnalysisReady)
		if err == nil {
			observers = a.setStatusLocked(next)
		}
	}
	a.mu.Unlock()
	notifyAnalysis(observers, AnalysisReady)
}

func (a *AnalysisSlice) begin(trackID string) error {
	a.mu.Lock()
	if a.holds > 0 {
		a.mu.Unlock()
		return services.Wrap(services.ErrIllegalTransition, "client", "analyze", "library write in progress", nil)
	}
	next, err := TransitionAnalysis(a.status, AnalysisBusy)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	a.running = true
	a.current = trackID
	observers := a.setStatusLocked(next)
	a.mu.Unlock()
	notifyAnalysis(observers, next)
	return nil
}

func (a *AnalysisSlice) end() {
	a.mu.Lock()
	a.running = false
	a.current = ""
	next, err := TransitionAnalysis(a.status, AnalysisReady)
	if err != nil {
		a.mu.Unlock()
		return
	}
	observers := a.setStatusLocked(next)
	a.mu.Unlock()
	notifyAnalysis(observers, next)
}

// AnalyzeTrack detects the tempo of one track, writes it into the audio file
// and records it in the library mirror. Tracks that already carry a BPM are
// skipped unless force is set.
func (a *AnalysisSlice) AnalyzeTrack(ctx context.Context, trackID string, force bool) (Result, error) {
	track, ok := a.library.Track(trackID)
	if !ok {
		return Result{TrackID: trackID}, services.Wrap(services.ErrNotFound, "client", "analyze", "track "+trackID, nil)
	}
	result := Result{TrackID: track.StableID(), BPM: track.BPM}
	if track.HasBPM() && !force {
		result.Skipped = true
		return result, nil
	}

	if err := a.begin(result.TrackID); err != nil {
		return result, err
	}
	defer a.end()

	ctx = services.WithScope(ctx, services.Scope{TrackID: result.TrackID})
	logger := logging.WithContext(ctx, a.logger)
	started := time.Now()
	bpm, err := a.analyze(ctx, track)
	if err != nil {
		logging.WarnWithContext(logger, "track analysis failed", "analysis_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "track keeps its previous bpm"))
		return result, err
	}
	result.BPM = bpm
	logger.Info("track analyzed",
		logging.Int("bpm", bpm),
		logging.Duration("elapsed", time.Since(started)))
	return result, nil
}

func (a *AnalysisSlice) analyze(ctx context.Context, track library.Track) (int, error) {
	source, err := a.server.PlayableURL(ctx, track)
	if err != nil {
		return 0, err
	}

	tempo, err := a.detect(ctx, source)
	if err != nil {
		return 0, err
	}
	bpm := analysis.RoundBPM(tempo)
	value, err := tags.Normalize(tags.TagBPM, strconv.Itoa(bpm))
	if err != nil {
		return 0, err
	}

	if _, err := a.msg.Request(ctx, protocol.WriteAudioTag, protocol.WriteAudioTagRequest{
		FileLocation: track.Location,
		TagName:      tags.TagBPM,
		UserEmail:    a.userEmail,
		Value:        value,
	}, a.timeouts.WriteTag()); err != nil {
		return 0, err
	}

	id := track.StableID()
	err = a.library.Mutate(func(lib *library.Library) error {
		target, ok := lib.FindTrack(id)
		if !ok {
			return services.Wrap(services.ErrNotFound, "client", "analyze", "track "+id+" left the library", nil)
		}
		target.BPM = bpm
		return nil
	})
	return bpm, err
}

type detection struct {
	bpm float64
	err error
}

// detect runs decode and detection under the analysis timeout. The work is
// cancelled when the timeout fires.
func (a *AnalysisSlice) detect(ctx context.Context, source string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeouts.Analysis())
	defer cancel()

	done := make(chan detection, 1)
	go func() {
		samples, rate, err := a.decoder.Decode(ctx, source)
		if err != nil {
			done <- detection{err: err}
			return
		}
		bpm, err := a.detector.Analyze(ctx, samples, rate)
		done <- detection{bpm: bpm, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, services.Wrap(services.ErrTimeout, "client", "analyze", source, res.err)
		}
		return res.bpm, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, services.Wrap(services.ErrTimeout, "client", "analyze",
				fmt.Sprintf("%s after %s", source, a.timeouts.Analysis()), ctx.Err())
		}
		return 0, ctx.Err()
	}
}

// AnalyzePlaylist analyzes every track of a playlist in order. Failures are
// logged and counted; the loop only stops when ctx is cancelled. progress,
// when set, runs after each track.
func (a *AnalysisSlice) AnalyzePlaylist(ctx context.Context, playlistID string, force bool, progress func(done, total int, res Result, err error)) (Summary, error) {
	ids, ok := a.library.PlaylistTrackIDs(playlistID)
	if !ok {
		return Summary{}, services.Wrap(services.ErrNotFound, "client", "analyze playlist", "playlist "+playlistID, nil)
	}

	var summary Summary
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := a.AnalyzeTrack(ctx, id, force)
		switch {
		case err != nil:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{TrackID: id, Err: err})
		case res.Skipped:
			summary.Skipped++
		default:
			summary.Analyzed++
		}
		if progress != nil {
			progress(i+1, len(ids), res, err)
		}
	}
	a.logger.Info("playlist analyzed",
		logging.String(logging.FieldPlaylistID, playlistID),
		logging.Int("analyzed", summary.Analyzed),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed))
	return summary, nil
}
