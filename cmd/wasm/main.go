//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"strings"
	"syscall/js"

	"kwscan/internal/adapter/analyzer"
	"kwscan/internal/adapter/memstore"
	"kwscan/internal/domain"
	"kwscan/internal/logging"
	"kwscan/internal/usecase"
)

var corpus *memstore.MemorySource

func init() {
	corpus = memstore.NewMemorySource()
}

func main() {
	c := make(chan struct{})

	js.Global().Set("kwscanAdd", js.FuncOf(addFile))
	js.Global().Set("kwscanRemove", js.FuncOf(removeFile))
	js.Global().Set("kwscanAnalyze", js.FuncOf(analyzeCorpus))
	js.Global().Set("kwscanClassify", js.FuncOf(classifySource))
	js.Global().Set("kwscanClear", js.FuncOf(clearCorpus))
	js.Global().Set("kwscanStats", js.FuncOf(getStats))

	<-c
}

func addFile(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return makeError("usage: kwscanAdd(package, path, content)")
	}

	file := domain.SourceFile{
		Package: args[0].String(),
		Path:    args[1].String(),
		Content: []byte(args[2].String()),
	}
	if err := corpus.Put(file); err != nil {
		return makeError("add failed: " + err.Error())
	}

	return makeResult(map[string]interface{}{
		"success": true,
		"files":   corpus.Len(),
	})
}

func removeFile(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: kwscanRemove(package, path)")
	}
	corpus.Delete(args[0].String(), args[1].String())
	return makeResult(map[string]interface{}{
		"success": true,
		"files":   corpus.Len(),
	})
}

func analyzeCorpus(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: kwscanAnalyze(keywords)")
	}
	specs, err := domain.ParseKeywords(splitKeywords(args[0].String()))
	if err != nil {
		return makeError(err.Error())
	}

	uc := usecase.NewAnalyzeUseCase(specs, usecase.AnalyzeConfig{
		Workers:          1,
		Limits:           domain.DefaultLimits(),
		Scan:             analyzer.DefaultOptions(),
		WellKnownVendors: domain.DefaultWellKnownVendors,
	}, nil, nil, logging.Discard())

	rep, err := uc.Run(context.Background(), corpus, nil)
	if err != nil {
		return makeError("analysis failed: " + err.Error())
	}
	data, err := json.Marshal(rep)
	if err != nil {
		return makeError(err.Error())
	}
	return string(data)
}

func classifySource(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: kwscanClassify(content, keywords)")
	}
	specs, err := domain.ParseKeywords(splitKeywords(args[1].String()))
	if err != nil {
		return makeError(err.Error())
	}

	opts := analyzer.DefaultOptions()
	opts.CollectLabels = true
	outcome, err := analyzer.NewClassifier(specs, opts).Classify([]byte(args[0].String()))
	if err != nil {
		return makeError(err.Error())
	}

	matches := make([]map[string]interface{}, 0, len(outcome.Matches))
	for _, m := range outcome.Matches {
		matches = append(matches, map[string]interface{}{
			"keyword": m.Keyword,
			"role":    m.Role.String(),
			"soft":    m.Role.IsSoft(),
			"line":    m.Line,
		})
	}
	return makeResult(map[string]interface{}{
		"matches": matches,
		"labels":  outcome.Labels,
		"tokens":  outcome.Tokens,
	})
}

func clearCorpus(this js.Value, args []js.Value) interface{} {
	corpus.Clear()
	return makeResult(map[string]interface{}{
		"success": true,
	})
}

func getStats(this js.Value, args []js.Value) interface{} {
	files := corpus.List()
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Package + ":" + f.Path
	}

	return makeResult(map[string]interface{}{
		"totalFiles": len(files),
		"totalBytes": corpus.Size(),
		"files":      paths,
	})
}

func splitKeywords(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
