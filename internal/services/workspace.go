package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/territory-studio/engine/internal/events"
	"github.com/territory-studio/engine/internal/models"
	appErr "github.com/territory-studio/engine/pkg/errors"
	"github.com/territory-studio/engine/pkg/logger"
)

// DocumentStore is the persistence collaborator the workspace loads from and
// saves to.
type DocumentStore interface {
	LoadAll(ctx context.Context) (*models.Document, error)
	SaveAll(ctx context.Context, doc *models.Document) error
}

// Options tunes a Workspace.
type Options struct {
	// MatchTolerance is the per-axis tolerance used by RebuildIndex.
	MatchTolerance float64
	Now            func() time.Time
}

// DefaultMatchTolerance is the per-axis tolerance of the geometric rebuild.
const DefaultMatchTolerance = 10

// Workspace owns the regions, territories, groups and assignment index of one
// map document. All mutations are serialised by a single write lock; the
// in-memory change and its events happen before the document is saved, and a
// failed save is reported without rolling the change back.
type Workspace struct {
	mu    sync.Mutex
	doc   *models.Document
	index map[int]int // region id -> territory id
	gen   uint64

	saveMu   sync.Mutex
	savedGen uint64

	store DocumentStore
	bus   *events.Bus
	seq   *idSequence
	opts  Options
}

// NewWorkspace returns an empty workspace. store may be nil, in which case
// nothing is persisted.
func NewWorkspace(store DocumentStore, bus *events.Bus, opts Options) *Workspace {
	if bus == nil {
		bus = events.NewBus(logger.L())
	}
	if opts.MatchTolerance <= 0 {
		opts.MatchTolerance = DefaultMatchTolerance
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Workspace{
		doc:   models.EmptyDocument(),
		index: map[int]int{},
		store: store,
		bus:   bus,
		seq:   newIDSequence(opts.Now),
		opts:  opts,
	}
}

// Bus returns the change notification bus of the workspace.
func (w *Workspace) Bus() *events.Bus { return w.bus }

// Load replaces the workspace state with the document returned by the store
// and publishes an init event.
func (w *Workspace) Load(ctx context.Context) error {
	if w.store == nil {
		return appErr.New(appErr.CodeUnavailable, "no document store configured")
	}
	doc, err := w.store.LoadAll(ctx)
	if err != nil {
		return wrapStoreErr(err, "load document")
	}
	w.mu.Lock()
	rebuilt := w.installLocked(doc)
	w.gen++
	w.savedGen = w.gen
	regions, territories := len(w.doc.ExtractedRegions), len(w.doc.TerritoryData.Territories)
	w.mu.Unlock()

	logger.L().Info("workspace loaded",
		zap.Int("regions", regions),
		zap.Int("territories", territories),
		zap.Int("rebuilt_links", rebuilt),
	)
	w.bus.Publish(ctx, events.KindInit, nil)
	return nil
}

// ReplaceDocument installs doc as the new state, publishes init and saves it.
func (w *Workspace) ReplaceDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return appErr.New(appErr.CodeValidation, "document required")
	}
	w.mu.Lock()
	w.installLocked(doc.Clone())
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()
	logger.L().Info("workspace replaced", zap.Int("regions", len(snap.ExtractedRegions)))
	return w.emit(ctx, snap, gen, change{events.KindInit, nil})
}

// Document returns a deep copy of the current document.
func (w *Workspace) Document() *models.Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.Clone()
}

// Save persists the current state.
func (w *Workspace) Save(ctx context.Context) error {
	w.mu.Lock()
	snap, gen := w.snapshotLocked()
	w.mu.Unlock()
	return w.persist(ctx, snap, gen)
}

// installLocked normalises doc and derives the assignment index from the
// region back-references. Documents from an older format without any
// back-reference are matched geometrically. It returns the number of links
// established that way.
func (w *Workspace) installLocked(doc *models.Document) int {
	if doc.TerritoryData.Territories == nil {
		doc.TerritoryData.Territories = []models.Territory{}
	}
	if doc.TerritoryData.Groups == nil {
		doc.TerritoryData.Groups = []models.Group{}
	}
	if doc.TerritoryData.Metadata == nil {
		doc.TerritoryData.Metadata = map[string]any{}
	}
	if doc.ExtractedRegions == nil {
		doc.ExtractedRegions = []models.Region{}
	}
	for i := range doc.ExtractedRegions {
		doc.ExtractedRegions[i].Refresh()
	}
	legacy := doc.Version < models.DocumentVersion
	doc.Version = models.DocumentVersion
	w.doc = doc
	w.index = map[int]int{}

	hasBackRefs := false
	for i := range doc.ExtractedRegions {
		if doc.ExtractedRegions[i].AssignedTerritoryID != nil {
			hasBackRefs = true
			break
		}
	}

	var maxAssignment int64
	for _, t := range doc.TerritoryData.Territories {
		for _, a := range t.Assignments {
			if a.ID > maxAssignment {
				maxAssignment = a.ID
			}
		}
	}
	w.seq.Observe(maxAssignment)

	if !hasBackRefs && legacy {
		return w.rebuildLocked()
	}

	claimed := map[int]bool{}
	for i := range doc.ExtractedRegions {
		r := &doc.ExtractedRegions[i]
		if r.AssignedTerritoryID == nil {
			continue
		}
		tid := *r.AssignedTerritoryID
		if w.territoryIndexLocked(tid) < 0 || claimed[tid] {
			logger.L().Warn("dropping dangling region link",
				zap.Int("region_id", r.RegionID),
				zap.Int("territory_id", tid),
			)
			r.AssignedTerritoryID = nil
			continue
		}
		claimed[tid] = true
		w.index[r.RegionID] = tid
	}
	return 0
}

// snapshotLocked copies the document for saving and bumps the generation.
func (w *Workspace) snapshotLocked() (*models.Document, uint64) {
	w.gen++
	snap := w.doc.Clone()
	snap.Version = models.DocumentVersion
	snap.LastUpdated = w.opts.Now().UTC()
	return snap, w.gen
}

type change struct {
	kind    events.Kind
	payload any
}

// emit publishes the changes in order and then saves snap.
func (w *Workspace) emit(ctx context.Context, snap *models.Document, gen uint64, changes ...change) error {
	for _, c := range changes {
		w.bus.Publish(ctx, c.kind, c.payload)
	}
	return w.persist(ctx, snap, gen)
}

// persist saves snap unless a newer generation has already been saved.
func (w *Workspace) persist(ctx context.Context, snap *models.Document, gen uint64) error {
	if w.store == nil {
		return nil
	}
	w.saveMu.Lock()
	defer w.saveMu.Unlock()
	if gen <= w.savedGen {
		return nil
	}
	if err := w.store.SaveAll(ctx, snap); err != nil {
		logger.L().Error("save document failed", zap.Uint64("generation", gen), zap.Error(err))
		return wrapStoreErr(err, "save document")
	}
	w.savedGen = gen
	return nil
}

func wrapStoreErr(err error, msg string) error {
	switch appErr.CodeOf(err) {
	case appErr.CodeIO, appErr.CodeUnavailable:
		return err
	}
	return appErr.Wrap(err, appErr.CodeIO, msg)
}

// idSequence hands out assignment ids that are unique for the life of the
// process: next = max(now in ms, last + 1).
type idSequence struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newIDSequence(now func() time.Time) *idSequence {
	return &idSequence{now: now}
}

func (s *idSequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.now().UnixMilli()
	if next <= s.last {
		next = s.last + 1
	}
	s.last = next
	return next
}

// Observe makes sure later ids are greater than id.
func (s *idSequence) Observe(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id > s.last {
		s.last = id
	}
}
