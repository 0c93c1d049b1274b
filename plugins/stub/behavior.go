package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/astrogo/fitsio"

	"gocpl/internal/modules/recipe/domain"
)

const (
	behaviorCombine = "combine"
	behaviorEcho    = "echo"
	behaviorFail    = "fail"
	behaviorCrash   = "crash"
	behaviorSleep   = "sleep"
)

// run imitates a native recipe. Like a real one it ignores ctx; the host
// kills the worker when the call times out.
func run(_ context.Context, spec recipeSpec, req domain.NativeRequest) (domain.NativeOutput, error) {
	log := &strings.Builder{}
	fmt.Fprintf(log, "[ INFO  ] %s: %d frame(s), %d parameter(s)\n", spec.Name, len(req.Frames), len(req.Parameters))
	out := domain.NativeOutput{Keywords: echoKeywords(req.Parameters)}

	switch spec.Behavior {
	case "", behaviorCombine:
		products, err := combine(spec, req, log)
		if err != nil {
			return domain.NativeOutput{}, err
		}
		out.Frames = products
	case behaviorEcho:
	case behaviorFail:
		out.Status = spec.Status
		if out.Status == 0 && spec.ErrorCode == 0 {
			out.Status = 1
		}
		out.ErrorCode = spec.ErrorCode
		out.ErrorMessage = spec.Message
		if out.ErrorCode != 0 {
			out.ErrorLocation = spec.Name + "_exec"
		}
		fmt.Fprintf(log, "[ ERROR ] %s: %s\n", spec.Name, spec.Message)
	case behaviorCrash:
		fmt.Fprintf(os.Stderr, "%s: segmentation fault\n", spec.Name)
		os.Exit(139)
	case behaviorSleep:
		time.Sleep(spec.Sleep)
	default:
		return domain.NativeOutput{}, fmt.Errorf("recipe %s: unknown behavior %q", spec.Name, spec.Behavior)
	}
	out.Log = log.String()
	return out, nil
}

// echoKeywords reports each parameter the way DFS products record them.
func echoKeywords(params []domain.NativeParam) []domain.Keyword {
	out := make([]domain.Keyword, 0, 2*len(params))
	for i, p := range params {
		prefix := fmt.Sprintf("ESO PRO REC1 PARAM%d", i+1)
		out = append(out,
			domain.Keyword{Name: prefix + " NAME", Value: p.Name},
			domain.Keyword{Name: prefix + " VALUE", Value: p.Value.String()},
		)
	}
	return out
}

func combine(spec recipeSpec, req domain.NativeRequest, log *strings.Builder) ([]domain.NativeFrame, error) {
	if len(spec.Outputs) == 0 {
		return nil, nil
	}
	method := "median"
	for _, p := range req.Parameters {
		if strings.HasSuffix(p.Name, ".method") {
			method = p.Value.String()
		}
	}
	tag := spec.Outputs[0]
	name := strings.ToLower(tag) + ".fits"
	fmt.Fprintf(log, "[ INFO  ] %s: combining %d frame(s) with method=%s into %s\n", spec.Name, len(req.Frames), method, name)
	if err := writeProduct(filepath.Join(req.OutputDir, name), tag, method, len(req.Frames)); err != nil {
		return nil, fmt.Errorf("recipe %s: write %s: %w", spec.Name, name, err)
	}
	// Relative, as CPL recipes report products written in their working directory.
	return []domain.NativeFrame{{Path: name, Tag: tag}}, nil
}

func writeProduct(path, tag, method string, ncombine int) error {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()

	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	img := fitsio.NewImage(-32, []int{2, 2})
	cards := []fitsio.Card{
		{Name: "PROCATG", Value: tag, Comment: "product category"},
		{Name: "METHOD", Value: method, Comment: "combination method"},
		{Name: "NCOMBINE", Value: ncombine, Comment: "number of combined frames"},
	}
	if err := img.Header().Append(cards...); err != nil {
		return err
	}
	if err := img.Write([]float32{1, 1, 1, 1}); err != nil {
		return err
	}
	if err := f.Write(img); err != nil {
		return err
	}
	if err := img.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return w.Close()
}
