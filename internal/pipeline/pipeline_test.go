package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/valpere/devgenie/internal"
	"github.com/valpere/devgenie/internal/chains"
	"github.com/valpere/devgenie/internal/llm"
	"github.com/valpere/devgenie/internal/pipeline"
	"github.com/valpere/devgenie/internal/report"
	"github.com/valpere/devgenie/internal/scorer"
)

const testPresets = `
default: short
chains:
  - name: short
    models: [m1, m2]
  - name: long
    aliases: [lengthy]
    models: [m1, m2, m3]
`

const judgeModel = "judge"

// fakeModels answers chain calls with "out-<model>" and judge calls with a
// score looked up by the output under evaluation.
type fakeModels struct {
	mu     sync.Mutex
	calls  []string
	fail   map[string]bool
	scores map[string]string
}

func (f *fakeModels) Generate(ctx context.Context, model, prompt, apiKey string) llm.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	if model == judgeModel {
		for out, score := range f.scores {
			if strings.Contains(prompt, out) {
				return llm.Result{Model: model, Output: score, Success: true}
			}
		}
		return llm.Result{Model: model, Output: "50", Success: true}
	}
	if f.fail[model] {
		return llm.Failure(model, errors.New("quota exceeded"))
	}
	return llm.Result{Model: model, Output: "out-" + model, Success: true}
}

func (f *fakeModels) chainCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c != judgeModel {
			out = append(out, c)
		}
	}
	return out
}

type recordingSaver struct {
	saved []*internal.RunResult
	err   error
}

func (r *recordingSaver) SaveRun(ctx context.Context, run *internal.RunResult) error {
	r.saved = append(r.saved, run)
	return r.err
}

var _ = Describe("Pipeline", func() {
	var (
		registry *chains.Registry
		models   *fakeModels
		saver    *recordingSaver
		logs     *bytes.Buffer
		logger   *slog.Logger
		opts     pipeline.Options
		ctx      context.Context
	)

	newPipeline := func() *pipeline.Pipeline {
		return pipeline.New(registry, models, scorer.New(models, judgeModel), saver, opts, logger)
	}

	BeforeEach(func() {
		var err error
		registry, err = chains.Parse([]byte(testPresets))
		Expect(err).NotTo(HaveOccurred())

		models = &fakeModels{fail: map[string]bool{}, scores: map[string]string{}}
		saver = &recordingSaver{}
		logs = &bytes.Buffer{}
		logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = pipeline.Options{Scoring: false, RubricHints: true}
		ctx = context.Background()
	})

	Describe("input validation", func() {
		It("rejects an empty task", func() {
			_, err := newPipeline().Run(ctx, pipeline.Request{Task: "   ", APIKey: "k"})
			Expect(err).To(MatchError(pipeline.ErrEmptyTask))
			Expect(models.calls).To(BeEmpty())
		})

		It("rejects a missing API key before any model call", func() {
			_, err := newPipeline().Run(ctx, pipeline.Request{Task: "t"})
			Expect(err).To(MatchError(pipeline.ErrMissingAPIKey))
			Expect(models.calls).To(BeEmpty())
		})
	})

	Describe("mode resolution", func() {
		It("uses the registry default when no mode is given", func() {
			res, err := newPipeline().Run(ctx, pipeline.Request{Task: "t", APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Mode).To(Equal("short"))
			Expect(models.chainCalls()).To(Equal([]string{"m1", "m2"}))
		})

		It("uses the configured default mode for blank requests", func() {
			opts.DefaultMode = "long"
			res, err := newPipeline().Run(ctx, pipeline.Request{Task: "t", APIKey: "k", Mode: " "})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Mode).To(Equal("long"))
		})

		It("resolves aliases case-insensitively", func() {
			res, err := newPipeline().Run(ctx, pipeline.Request{Task: "t", APIKey: "k", Mode: "LENGTHY"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Mode).To(Equal("long"))
			Expect(res.TotalModels).To(Equal(3))
		})

		It("falls back to the default for unknown modes and logs it", func() {
			res, err := newPipeline().Run(ctx, pipeline.Request{Task: "t", APIKey: "k", Mode: "turbo"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Mode).To(Equal("short"))
			Expect(logs.String()).To(ContainSubstring("unknown mode"))
		})
	})

	Describe("a completed run", func() {
		It("assigns a UUID and forwards raw outputs without scoring", func() {
			res, err := newPipeline().Run(ctx, pipeline.Request{Task: "t", APIKey: "k", Mode: "long"})
			Expect(err).NotTo(HaveOccurred())

			_, parseErr := uuid.Parse(res.ID)
			Expect(parseErr).NotTo(HaveOccurred())
			Expect(res.FinalOutput).To(Equal("out-m3"))
			Expect(res.ScoringEnabled).To(BeFalse())
			Expect(res.Candidates).To(BeEmpty())
			Expect(models.calls).NotTo(ContainElement(judgeModel))
		})

		It("keeps the task when every step fails", func() {
			models.fail = map[string]bool{"m1": true, "m2": true}
			res, err := newPipeline().Run(ctx, pipeline.Request{Task: "the task", APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.FinalOutput).To(Equal("the task"))
			Expect(res.Steps).To(HaveLen(2))
			Expect(res.SuccessfulModels).To(BeZero())
		})

		It("honours a per-request scoring override", func() {
			enabled := true
			models.scores = map[string]string{"out-m1": "90", "out-m2": "40"}

			res, err := newPipeline().Run(ctx, pipeline.Request{Task: "t", APIKey: "k", Scoring: &enabled})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ScoringEnabled).To(BeTrue())
			Expect(res.Candidates).To(HaveLen(2))
			Expect(res.FinalOutput).To(Equal("out-m1"))
			Expect(models.calls).To(ContainElement(judgeModel))
		})

		It("saves the run and survives a save failure", func() {
			saver.err = errors.New("disk full")
			res, err := newPipeline().Run(ctx, pipeline.Request{Task: "t", APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
			Expect(saver.saved).To(ConsistOf(res))
			Expect(logs.String()).To(ContainSubstring("failed to save run"))
		})

		It("runs without a saver", func() {
			p := pipeline.New(registry, models, nil, nil, opts, logger)
			_, err := p.Run(ctx, pipeline.Request{Task: "t", APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("dumps a report directory when configured", func() {
			opts.DumpDir = GinkgoT().TempDir()
			res, err := newPipeline().Run(ctx, pipeline.Request{Task: "t", APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())

			for _, name := range []string{report.FinalOutputFile, report.StepsFile, report.SummaryFile} {
				_, statErr := os.Stat(filepath.Join(opts.DumpDir, res.ID, name))
				Expect(statErr).NotTo(HaveOccurred(), name)
			}
		})
	})

	Describe("faults", func() {
		It("recovers a panic into an error", func() {
			p := pipeline.New(registry, panicInvoker{}, nil, saver, opts, logger)
			res, err := p.Run(ctx, pipeline.Request{Task: "t", APIKey: "k"})
			Expect(err).To(MatchError(ContainSubstring("run aborted")))
			Expect(res).To(BeNil())
			Expect(saver.saved).To(BeEmpty())
		})

		It("reports a missing invoker", func() {
			p := pipeline.New(registry, nil, nil, saver, opts, logger)
			_, err := p.Run(ctx, pipeline.Request{Task: "t", APIKey: "k"})
			Expect(err).To(HaveOccurred())
		})
	})

	It("exposes the registry", func() {
		Expect(newPipeline().Registry()).To(BeIdenticalTo(registry))
	})
})

type panicInvoker struct{}

func (panicInvoker) Generate(ctx context.Context, model, prompt, apiKey string) llm.Result {
	panic("invoker exploded")
}
