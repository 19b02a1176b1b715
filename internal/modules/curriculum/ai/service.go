package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/chunker"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/content"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/prompts"
	"github.com/optio-learning/optio-backend/internal/observability"
	"github.com/optio-learning/optio-backend/internal/platform/logger"
	"github.com/optio-learning/optio-backend/internal/platform/openai"
)

const (
	OpDetectStructure = "detect_structure"
	OpAlignPhilosophy = "align_philosophy"
	OpGenerateContent = "generate_content"
	OpGenerateTopic   = "generate_from_topic"
)

type Config struct {
	// MaxChunkChars is the text length above which structure detection chunks.
	MaxChunkChars int
	ChunkWorkers  int
	SummaryChars  int
	// GenerationAttempts bounds corrective retries after a validation failure.
	GenerationAttempts int
}

func (c Config) withDefaults() Config {
	if c.MaxChunkChars <= 0 {
		c.MaxChunkChars = chunker.DefaultMaxChars
	}
	if c.ChunkWorkers <= 0 {
		c.ChunkWorkers = chunker.DefaultWorkers
	}
	if c.SummaryChars <= 0 {
		c.SummaryChars = DefaultSummaryChars
	}
	if c.GenerationAttempts <= 0 {
		c.GenerationAttempts = 2
	}
	return c
}

// Service wraps the generation model for the four AI-backed operations.
// All model output passes through typed extraction before it is returned.
type Service struct {
	log     *logger.Logger
	llm     openai.Client
	metrics *observability.Metrics
	cfg     Config
}

func NewService(log *logger.Logger, llm openai.Client, metrics *observability.Metrics, cfg Config) *Service {
	return &Service{
		log:     log.With("service", "CurriculumAIService"),
		llm:     llm,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
	}
}

// DetectStructure recovers the course structure from parsed content.
// Text longer than MaxChunkChars is chunked and analyzed in parallel; the
// call fails only when every chunk fails.
func (s *Service) DetectStructure(ctx context.Context, parsed curriculum.ParsedContent) (res curriculum.StructureResult, err error) {
	ctx, span := observability.StartSpan(ctx, "curriculum.ai.detect_structure",
		attribute.String("source_type", parsed.SourceType),
		attribute.Int("text_chars", len([]rune(parsed.Text))),
	)
	defer func() { observability.EndSpan(span, err) }()
	ctx = openai.WithOperation(ctx, OpDetectStructure)

	if len([]rune(parsed.Text)) <= s.cfg.MaxChunkChars {
		res, err = s.detectOnce(ctx, BuildSourceSummary(parsed, s.cfg.SummaryChars), "")
		if err != nil {
			return curriculum.StructureResult{}, err
		}
	} else {
		chunks := chunker.Chunk(parsed, s.cfg.MaxChunkChars)
		s.log.Info("structure detection chunked", "chunks", len(chunks), "text_chars", len([]rune(parsed.Text)))
		results := chunker.ProcessParallel(ctx, s.log, chunks, s.cfg.ChunkWorkers,
			func(ctx context.Context, c curriculum.ContentChunk) (curriculum.StructureResult, error) {
				label := fmt.Sprintf("part %d of %d", c.ChunkIndex+1, c.TotalChunks)
				r, err := s.detectOnce(ctx, chunkSummary(parsed.Metadata, c, s.cfg.SummaryChars), label)
				if err != nil {
					s.metrics.IncChunk("error")
					return curriculum.StructureResult{}, err
				}
				s.metrics.IncChunk("ok")
				if onlyPlaceholder(r) {
					// Merge adds the placeholder once if no chunk found modules.
					r.Modules = nil
				}
				return r, nil
			})
		failed := chunker.Failed(results)
		if failed == len(results) {
			return curriculum.StructureResult{}, wrap(OpDetectStructure, fmt.Errorf("all %d chunks failed: %w", failed, results[0].Err))
		}
		if failed > 0 {
			s.log.Warn("structure detection degraded", "failed_chunks", failed, "total_chunks", len(results))
		}
		res = chunker.Merge(results)
	}

	if res.Course.Title == "" {
		res.Course.Title = parsed.Metadata.Title
	}
	if res.Course.Description == "" {
		res.Course.Description = parsed.Metadata.Description
	}
	cleanStructure(&res)
	return res, nil
}

func (s *Service) detectOnce(ctx context.Context, summary, chunkLabel string) (curriculum.StructureResult, error) {
	p, err := prompts.Build(prompts.PromptStructureDetect, prompts.Input{SourceSummary: summary, ChunkLabel: chunkLabel})
	if err != nil {
		return curriculum.StructureResult{}, wrap(OpDetectStructure, err)
	}
	obj, err := s.llm.GenerateJSON(ctx, p.System, p.User)
	if err != nil {
		return curriculum.StructureResult{}, wrap(OpDetectStructure, err)
	}
	return extractStructure(obj), nil
}

// AlignPhilosophy rewrites a structure toward the learning philosophy.
// With preserve set, the module and lesson layout of the input is kept and
// only text is taken from the model.
func (s *Service) AlignPhilosophy(ctx context.Context, structure curriculum.StructureResult, level curriculum.TransformationLevel, preserve bool) (res curriculum.AlignmentResult, err error) {
	level = level.Normalize()
	ctx, span := observability.StartSpan(ctx, "curriculum.ai.align_philosophy",
		attribute.String("level", string(level)),
		attribute.Bool("preserve_structure", preserve),
	)
	defer func() { observability.EndSpan(span, err) }()
	ctx = openai.WithOperation(ctx, OpAlignPhilosophy)

	raw, err := json.Marshal(structure)
	if err != nil {
		return curriculum.AlignmentResult{}, wrap(OpAlignPhilosophy, err)
	}
	p, err := prompts.Build(prompts.PromptPhilosophyAlign, prompts.Input{
		StructureJSON:       string(raw),
		TransformationLevel: string(level),
		LevelGuidance:       prompts.LevelGuidance(string(level)),
		PreserveStructure:   preserve,
	})
	if err != nil {
		return curriculum.AlignmentResult{}, wrap(OpAlignPhilosophy, err)
	}
	start := time.Now()
	obj, err := s.llm.GenerateJSON(ctx, p.System, p.User)
	if err != nil {
		return curriculum.AlignmentResult{}, wrap(OpAlignPhilosophy, err)
	}
	res = extractAlignment(obj)

	switch {
	case onlyPlaceholder(res.StructureResult):
		res.StructureResult = structure
		res.TransformationNotes = append(res.TransformationNotes, "alignment returned no modules; original structure kept")
	case preserve:
		res.StructureResult = overlayText(structure, res.StructureResult)
	}
	if res.Course.Title == "" {
		res.Course.Title = structure.Course.Title
	}
	if res.Course.Description == "" {
		res.Course.Description = structure.Course.Description
	}
	if res.CurriculumType == "" {
		res.CurriculumType = structure.CurriculumType
	}
	cleanStructure(&res.StructureResult)
	s.log.Debug("alignment complete",
		"level", level,
		"modules", len(res.Modules),
		"notes", len(res.TransformationNotes),
		"score", res.AlignmentScore,
		"took", time.Since(start).String(),
	)
	return res, nil
}

// GenerateCourseContent builds projects, lessons and steps from an aligned
// structure. With objectives, exactly one project is produced per objective.
func (s *Service) GenerateCourseContent(ctx context.Context, aligned curriculum.AlignmentResult, objectives []string) (res curriculum.GenerationResult, err error) {
	objectives = NormalizeObjectives(objectives)
	ctx, span := observability.StartSpan(ctx, "curriculum.ai.generate_content",
		attribute.Int("objectives", len(objectives)),
		attribute.Int("modules", len(aligned.Modules)),
	)
	defer func() { observability.EndSpan(span, err) }()
	ctx = openai.WithOperation(ctx, OpGenerateContent)

	raw, err := json.Marshal(aligned)
	if err != nil {
		return curriculum.GenerationResult{}, wrap(OpGenerateContent, err)
	}
	res, err = s.generate(ctx, OpGenerateContent, prompts.PromptCourseGenerate, prompts.Input{AlignmentJSON: string(raw)}, objectives)
	if err != nil {
		return curriculum.GenerationResult{}, err
	}
	if res.Course.Title == "" {
		res.Course.Title = aligned.Course.Title
	}
	if res.Course.Description == "" {
		res.Course.Description = aligned.Course.Description
	}
	return res, nil
}

// GenerateFromTopic builds a course from a free-text topic.
func (s *Service) GenerateFromTopic(ctx context.Context, topic string, objectives []string) (res curriculum.GenerationResult, err error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return curriculum.GenerationResult{}, wrap(OpGenerateTopic, fmt.Errorf("%w: topic required", ErrValidation))
	}
	objectives = NormalizeObjectives(objectives)
	ctx, span := observability.StartSpan(ctx, "curriculum.ai.generate_from_topic",
		attribute.Int("objectives", len(objectives)),
	)
	defer func() { observability.EndSpan(span, err) }()
	ctx = openai.WithOperation(ctx, OpGenerateTopic)

	res, err = s.generate(ctx, OpGenerateTopic, prompts.PromptTopicGenerate, prompts.Input{Topic: topic}, objectives)
	if err != nil {
		return curriculum.GenerationResult{}, err
	}
	if res.Course.Title == "" {
		res.Course.Title = content.CleanTitle(topic)
	}
	return res, nil
}

// generate runs a generation prompt, validates the result against the
// objectives and retries with a correction note on validation failure.
func (s *Service) generate(ctx context.Context, op string, name prompts.PromptName, in prompts.Input, objectives []string) (curriculum.GenerationResult, error) {
	in.Objectives = objectives
	var lastErr error
	for attempt := 1; attempt <= s.cfg.GenerationAttempts; attempt++ {
		p, err := prompts.Build(name, in)
		if err != nil {
			return curriculum.GenerationResult{}, wrap(op, err)
		}
		obj, err := s.llm.GenerateJSON(ctx, p.System, p.User)
		if err != nil {
			return curriculum.GenerationResult{}, wrap(op, err)
		}
		res := extractGeneration(obj)
		if err := MatchObjectives(&res, objectives); err != nil {
			lastErr = err
			s.log.Warn("generation output rejected",
				"operation", op,
				"attempt", attempt,
				"max_attempts", s.cfg.GenerationAttempts,
				"error", err,
			)
			in.CorrectionNote = err.Error()
			continue
		}
		cleanGeneration(&res)
		return res, nil
	}
	return curriculum.GenerationResult{}, wrap(op, lastErr)
}

func onlyPlaceholder(s curriculum.StructureResult) bool {
	return len(s.Modules) == 1 && s.Modules[0].Title == curriculum.PlaceholderModuleTitle && len(s.Modules[0].Lessons) == 0
}

// overlayText keeps base's layout and takes titles and descriptions from
// aligned at matching positions.
func overlayText(base, aligned curriculum.StructureResult) curriculum.StructureResult {
	out := base
	out.Course = aligned.Course
	out.Modules = make([]curriculum.ModuleDraft, len(base.Modules))
	for i, m := range base.Modules {
		m.Lessons = append([]curriculum.LessonDraft(nil), m.Lessons...)
		if i < len(aligned.Modules) {
			am := aligned.Modules[i]
			m.Title = am.Title
			if am.Description != "" {
				m.Description = am.Description
			}
			for j := range m.Lessons {
				if j >= len(am.Lessons) {
					break
				}
				m.Lessons[j].Title = am.Lessons[j].Title
				if d := am.Lessons[j].Description; d != "" {
					m.Lessons[j].Description = d
				}
			}
		}
		out.Modules[i] = m
	}
	return out
}

func cleanStructure(s *curriculum.StructureResult) {
	s.Course.Title = content.CleanTitle(s.Course.Title)
	s.Course.Description = content.CleanCourseDescription(s.Course.Description)
	for i := range s.Modules {
		m := &s.Modules[i]
		if t := content.CleanTitle(m.Title); t != "" {
			m.Title = t
		}
		m.Description = content.StripInstructorVoice(m.Description)
		for j := range m.Lessons {
			if t := content.CleanTitle(m.Lessons[j].Title); t != "" {
				m.Lessons[j].Title = t
			}
			m.Lessons[j].Description = content.StripInstructorVoice(m.Lessons[j].Description)
		}
	}
	for k := range s.Tasks {
		if t := content.CleanTitle(s.Tasks[k].Title); t != "" {
			s.Tasks[k].Title = t
		}
	}
}

func cleanGeneration(g *curriculum.GenerationResult) {
	g.Course.Title = content.CleanTitle(g.Course.Title)
	g.Course.Description = content.CleanCourseDescription(g.Course.Description)
	for i := range g.Projects {
		p := &g.Projects[i]
		if t := content.CleanTitle(p.Title); t != "" {
			p.Title = t
		}
		p.Description = content.CleanProjectDescription(p.Description)
		p.BigIdea = content.Truncate(content.CleanText(p.BigIdea), content.MaxBigIdeaLength)
		for j := range p.Lessons {
			if t := content.CleanTitle(p.Lessons[j].Title); t != "" {
				p.Lessons[j].Title = t
			}
		}
	}
}
