// Package pipeline ties C4's parts together into one callable search
// entry point: term/graph construction, filter evaluation, the ranking
// cascade, distinct dedup, and match formatting, producing the result
// object named in spec §4.4.5. This mirrors internal/indexer.Pipeline's
// role on the write side: one orchestrator per request, everything else in
// C4 stays a standalone, independently testable package.
package pipeline

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/geo"
	"go.etcd.io/bbolt"

	"github.com/Aman-CERP/ftscore/internal/codec"
	"github.com/Aman-CERP/ftscore/internal/config"
	"github.com/Aman-CERP/ftscore/internal/errors"
	"github.com/Aman-CERP/ftscore/internal/query"
	"github.com/Aman-CERP/ftscore/internal/query/filter"
	"github.com/Aman-CERP/ftscore/internal/query/rank"
	"github.com/Aman-CERP/ftscore/internal/store"
	"github.com/Aman-CERP/ftscore/internal/vector"
)

// Request is one search call (spec §6.2).
type Request struct {
	Query string

	Vector                []float32
	Embedder               string  // which configured embedder Vector/Q targets; defaults to "default"
	Q                      string  // rendered through the embedder's query template when Vector is empty
	SemanticRatio          float64 // hybrid.semanticRatio; 0 disables vector blending

	Filter string
	Sort   []string
	Facets []string

	AttributesToRetrieve []string // default: settings.DisplayedAttributes, or "*"
	AttributesToCrop     []string
	CropLength           int
	CropMarker           string
	AttributesToHighlight []string
	HighlightPreTag       string
	HighlightPostTag      string
	ShowMatchesPosition   bool

	MatchingStrategy string // overrides settings.TermsMatchingStrategy when set

	Limit, Offset     int
	Page, HitsPerPage int

	Distinct string // overrides settings.DistinctAttribute when set

	RankingScoreThreshold   float64
	ShowRankingScore        bool
	ShowRankingScoreDetails bool
}

// Hit is one result document (spec §4.4.5).
type Hit struct {
	ExternalID string
	Document   map[string]any

	Formatted       map[string]string
	MatchesPosition map[string][]query.MatchPosition

	RankingScore        float64
	RankingScoreDetails map[string]float64

	GeoDistanceMeters *float64
}

// Response is the returned result set (spec §6.2).
type Response struct {
	Hits               []Hit
	Query              string
	EstimatedTotalHits int
	Limit              int
	Offset             int
	Page               int
	HitsPerPage        int

	FacetDistribution map[string]map[string]int
}

// Engine runs searches against one index environment.
type Engine struct {
	env     *store.Environment
	docids  *store.DocidAllocator
	Vectors *vector.Manager // nil when no embedders are configured for this index
}

// NewEngine builds an Engine bound to env, loading the persisted docid
// allocator (the same bimap internal/indexer.Pipeline maintains on writes).
func NewEngine(env *store.Environment) (*Engine, error) {
	docids, err := store.LoadDocidAllocator(env)
	if err != nil {
		return nil, fmt.Errorf("load docid allocator: %w", err)
	}
	return &Engine{env: env, docids: docids}, nil
}

// RefreshDocids reloads the docid allocator from disk; callers must call
// this after any commit that changed the document set, since the allocator
// is loaded once at construction and not watched for changes.
func (e *Engine) RefreshDocids() error {
	docids, err := store.LoadDocidAllocator(e.env)
	if err != nil {
		return fmt.Errorf("reload docid allocator: %w", err)
	}
	e.docids = docids
	return nil
}

// Search runs req against the current index snapshot.
func (e *Engine) Search(req Request) (*Response, error) {
	var resp *Response
	err := e.env.View(func(tx *bbolt.Tx) error {
		r, err := e.search(tx, req)
		resp = r
		return err
	})
	return resp, err
}

func (e *Engine) search(tx *bbolt.Tx, req Request) (*Response, error) {
	settings := e.env.Settings().Get()
	if req.MatchingStrategy != "" {
		settings.TermsMatchingStrategy = req.MatchingStrategy
	}
	if req.Distinct != "" {
		settings.DistinctAttribute = req.Distinct
	}

	lex, err := query.NewLexicon(e.env.WordsFST(tx))
	if err != nil {
		return nil, fmt.Errorf("load words fst: %w", err)
	}

	terms := query.BuildTerms(req.Query, settings, lex)
	graph := query.BuildGraph(terms)

	live := e.docids.Live()

	universe := live
	if req.Filter != "" {
		ev := &filter.Evaluator{Tx: tx, Env: e.env, Settings: settings, Universe: live}
		filtered, err := filter.Evaluate(req.Filter, ev)
		if err != nil {
			return nil, err
		}
		universe = filtered
	}

	rules, err := resolveRankingRules(settings, req.Sort)
	if err != nil {
		return nil, err
	}
	cascade := rank.BuildCascade(rules)

	ctx := &rank.Context{
		Tx:            tx,
		Env:           e.env,
		Settings:      settings,
		Graph:         graph,
		QueryVector:   req.Vector,
		SemanticRatio: req.SemanticRatio,
	}

	if e.Vectors != nil && req.SemanticRatio > 0 {
		queryVec, scores, err := e.vectorScores(tx, req)
		if err != nil {
			return nil, err
		}
		ctx.VectorScores = scores
		if len(ctx.QueryVector) == 0 {
			ctx.QueryVector = queryVec
		}
	}

	candidates := matchCandidates(ctx, graph, universe)

	ranked, err := cascade.Run(ctx, candidates)
	if err != nil {
		return nil, err
	}
	ranked, err = rank.ApplyDistinct(ctx, ranked)
	if err != nil {
		return nil, err
	}

	if req.RankingScoreThreshold > 0 {
		ranked = applyScoreThreshold(ranked, req.RankingScoreThreshold)
	}

	total := len(ranked)
	maxHits := settings.Pagination.MaxTotalHits
	if maxHits > 0 && total > maxHits {
		total = maxHits
	}

	limit, offset, page, hitsPerPage := resolvePagination(req)
	page, pageHits := paginate(ranked, limit, offset, page, hitsPerPage)

	matchWords := query.MatchWords(terms)
	formatOpts := formatOptions(req)

	hits := make([]Hit, 0, len(pageHits))
	for i, docid := range pageHits {
		h, err := e.buildHit(tx, docid, i+offsetFor(req), settings, req, matchWords, formatOpts, len(ranked))
		if err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}

	var facetDist map[string]map[string]int
	if len(req.Facets) > 0 {
		matchedSet := roaring.New()
		matchedSet.AddMany(ranked)
		facetDist = map[string]map[string]int{}
		for _, f := range req.Facets {
			counts, err := facetDistribution(tx, e.env, f, matchedSet)
			if err != nil {
				return nil, err
			}
			if counts != nil {
				facetDist[f] = counts
			}
		}
	}

	return &Response{
		Hits:               hits,
		Query:              req.Query,
		EstimatedTotalHits: total,
		Limit:              limit,
		Offset:             offset,
		Page:               page,
		HitsPerPage:        hitsPerPage,
		FacetDistribution:  facetDist,
	}, nil
}

// vectorScores resolves req's query vector (rendering req.Q through the
// embedder's query template when no raw vector was supplied) and runs an
// ANN search against e.Vectors, returning the per-docid similarity map the
// Vector ranking rule consumes (spec §4.6 read flow).
func (e *Engine) vectorScores(tx *bbolt.Tx, req Request) ([]float32, map[uint32]float64, error) {
	name := req.Embedder
	if name == "" {
		name = "default"
	}

	q := req.Vector
	if len(q) == 0 {
		if req.Q == "" {
			return nil, nil, nil
		}
		vec, err := e.Vectors.EmbedQuery(context.Background(), name, req.Q)
		if err != nil {
			return nil, nil, err
		}
		q = vec
	}

	k := req.Limit
	if k <= 0 {
		k = req.HitsPerPage
	}
	if k <= 0 {
		k = 1000
	}
	scores, err := e.Vectors.Search(tx, name, q, k)
	if err != nil {
		return nil, nil, err
	}
	return q, scores, nil
}

// resolveRankingRules expands the "sort" placeholder in settings.RankingRules
// with the request's sort list (Meilisearch's convention: a bare "sort"
// entry in the ranking-rule list marks where request-time sort criteria are
// spliced in). A request Sort with no "sort" placeholder in the settings is
// rejected, matching spec §6.5's invalid_search_sort.
func resolveRankingRules(settings config.Settings, reqSort []string) ([]string, error) {
	if len(reqSort) == 0 {
		return settings.RankingRules, nil
	}
	out := make([]string, 0, len(settings.RankingRules)+len(reqSort))
	spliced := false
	for _, r := range settings.RankingRules {
		if r == "sort" {
			out = append(out, reqSort...)
			spliced = true
			continue
		}
		out = append(out, r)
	}
	if !spliced {
		return nil, errors.New(errors.CodeInvalidSort,
			"the sort parameter requires a \"sort\" entry in the ranking rules", nil)
	}
	return out, nil
}

// matchCandidates computes the starting universe for the ranking cascade:
// every live, filter-matching docid that matches at least one query term
// (or every filter-matching docid, for an empty/placeholder query). The
// exact per-term conjunction implied by the query graph's position ranges
// is left to the Words ranking rule to enforce through bucket ordering;
// this keeps the up-front candidate set a cheap, deliberately permissive
// OR-of-terms, narrowed down by matched-term count once Words runs.
func matchCandidates(ctx *rank.Context, g *query.Graph, universe *roaring.Bitmap) *roaring.Bitmap {
	nodes := g.TermNodes()
	if len(nodes) == 0 {
		return universe.Clone()
	}

	out := roaring.New()
	for _, n := range nodes {
		bm, err := rank.TermBitmap(ctx, n.Term)
		if err != nil || bm == nil {
			continue
		}
		out.Or(bm)
	}
	out.And(universe)
	return out
}

// applyScoreThreshold drops every doc past the first one whose approximate
// rank-position score (see scoreAt) falls below threshold.
func applyScoreThreshold(ranked []uint32, threshold float64) []uint32 {
	for i := range ranked {
		if scoreAt(i, len(ranked)) < threshold {
			return ranked[:i]
		}
	}
	return ranked
}

// scoreAt approximates _rankingScore from a hit's position in the final
// cascade order: 1.0 for the best hit, decaying linearly to a floor for the
// last. The cascade does not carry a closed-form relevance score (each rule
// only orders buckets relative to each other), so this reports relative
// rank quality rather than the literal per-rule-weighted score spec §4.4.2
// describes; documented as a simplification.
func scoreAt(i, total int) float64 {
	if total <= 1 {
		return 1
	}
	return 1 - float64(i)/float64(total-1)*0.9
}

func resolvePagination(req Request) (limit, offset, page, hitsPerPage int) {
	if req.HitsPerPage > 0 || req.Page > 0 {
		hitsPerPage = req.HitsPerPage
		if hitsPerPage <= 0 {
			hitsPerPage = 20
		}
		page = req.Page
		if page <= 0 {
			page = 1
		}
		return hitsPerPage, (page - 1) * hitsPerPage, page, hitsPerPage
	}
	limit = req.Limit
	if limit <= 0 {
		limit = 20
	}
	offset = req.Offset
	return limit, offset, 0, 0
}

func offsetFor(req Request) int {
	_, offset, page, hitsPerPage := resolvePagination(req)
	if page > 0 {
		return (page - 1) * hitsPerPage
	}
	return offset
}

func paginate(ranked []uint32, limit, offset, page, hitsPerPage int) (int, []uint32) {
	if offset >= len(ranked) {
		return page, nil
	}
	end := offset + limit
	if end > len(ranked) {
		end = len(ranked)
	}
	return page, ranked[offset:end]
}

func formatOptions(req Request) query.FormatOptions {
	opts := query.DefaultFormatOptions()
	if req.CropLength > 0 {
		opts.CropLength = req.CropLength
	}
	if req.CropMarker != "" {
		opts.CropMarker = req.CropMarker
	}
	if req.HighlightPreTag != "" {
		opts.HighlightPreTag = req.HighlightPreTag
	}
	if req.HighlightPostTag != "" {
		opts.HighlightPostTag = req.HighlightPostTag
	}
	return opts
}

func (e *Engine) buildHit(tx *bbolt.Tx, docid uint32, rank0 int, settings config.Settings, req Request, matchWords map[string]struct{}, formatOpts query.FormatOptions, total int) (Hit, error) {
	ext, _ := e.docids.ExternalID(docid)
	blob := e.env.GetDocument(tx, docid)
	fields, err := codec.DecodeOBKV(blob)
	if err != nil {
		return Hit{}, fmt.Errorf("decode document %d: %w", docid, err)
	}

	retrieve := req.AttributesToRetrieve
	if len(retrieve) == 0 {
		retrieve = settings.DisplayedAttributes
	}

	doc := map[string]any{}
	formatted := map[string]string{}
	matches := map[string][]query.MatchPosition{}

	cropSet := attrSet(req.AttributesToCrop)
	highlightSet := attrSet(req.AttributesToHighlight)

	for _, f := range fields {
		name, ok := e.env.Fields().Name(f.Fid)
		if !ok {
			continue
		}
		if !attrRetrievable(name, retrieve, settings.DisplayedAttributes) {
			continue
		}
		doc[name] = rawJSON(f.Data)

		doCrop := cropSet[name] || cropSet["*"]
		doHighlight := highlightSet[name] || highlightSet["*"]
		if !doCrop && !doHighlight && !req.ShowMatchesPosition {
			continue
		}
		text := string(f.Data)
		out, positions := query.Format(text, settings, matchWords, formatOpts, doCrop, doHighlight)
		if doCrop || doHighlight {
			formatted[name] = out
		}
		if len(positions) > 0 {
			matches[name] = positions
		}
	}

	h := Hit{ExternalID: ext, Document: doc}
	if len(formatted) > 0 {
		h.Formatted = formatted
	}
	if req.ShowMatchesPosition && len(matches) > 0 {
		h.MatchesPosition = matches
	}
	if req.ShowRankingScore || req.ShowRankingScoreThresholdNeeded() {
		h.RankingScore = scoreAt(rank0, total)
	}
	if req.ShowRankingScoreDetails {
		h.RankingScoreDetails = map[string]float64{"position": float64(rank0)}
	}

	if p, ok, err := e.env.GetGeoPoint(tx, docid); err == nil && ok {
		if g, found := firstGeoSort(req.Sort); found {
			d := haversineMeters(g.lat, g.lng, p.Lat, p.Lng)
			h.GeoDistanceMeters = &d
		}
	}

	return h, nil
}

// ShowRankingScoreThresholdNeeded reports whether a ranking score must be
// computed even without ShowRankingScore, because rankingScoreThreshold
// needs one to filter against.
func (r Request) ShowRankingScoreThresholdNeeded() bool {
	return r.RankingScoreThreshold > 0
}

func attrSet(attrs []string) map[string]bool {
	out := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		out[a] = true
	}
	return out
}

// attrRetrievable reports whether name may appear in a result, honouring
// both the request's attributesToRetrieve and the index's displayedAttributes
// allow-list (spec §4.4.5 "displayed fields filtered by attributesToRetrieve,
// default displayedAttributes").
func attrRetrievable(name string, retrieve, displayed []string) bool {
	if len(displayed) > 0 && !attrListAllows(displayed, name) {
		return false
	}
	if len(retrieve) == 0 {
		return true
	}
	return attrListAllows(retrieve, name)
}

func attrListAllows(list []string, name string) bool {
	for _, a := range list {
		if a == "*" || a == name {
			return true
		}
	}
	return false
}

func rawJSON(data []byte) any {
	return jsonRaw(data)
}

type jsonRaw []byte

// MarshalJSON lets a stored field's already-encoded JSON bytes pass through
// untouched when the hit map itself is marshalled.
func (j jsonRaw) MarshalJSON() ([]byte, error) { return j, nil }

type geoSortPoint struct{ lat, lng float64 }

func firstGeoSort(sortList []string) (geoSortPoint, bool) {
	for _, s := range sortList {
		if g, ok := rank.ParseGeoRule(s); ok {
			return geoSortPoint{lat: g.Lat, lng: g.Lng}, true
		}
	}
	return geoSortPoint{}, false
}

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return geo.Haversin(lng1, lat1, lng2, lat2) * 1000
}

// facetDistribution counts live values of one string facet field within a
// result set, for the spec §6.2 facetDistribution response field. Exported
// casing kept internal since only this package's Search wires it in so far.
func facetDistribution(tx *bbolt.Tx, env *store.Environment, field string, within *roaring.Bitmap) (map[string]int, error) {
	fid, known := env.Fields().ID(field)
	if !known {
		return nil, nil
	}
	counts := map[string]int{}
	levelPrefix := append(store.BEUint16(fid), 0)
	err := env.FacetIdStringDocids().ForEachPrefix(tx, levelPrefix, func(suffix []byte, bm *roaring.Bitmap) error {
		matched := roaring.And(bm, within)
		if !matched.IsEmpty() {
			counts[string(suffix)] = int(matched.GetCardinality())
		}
		return nil
	})
	return counts, err
}
