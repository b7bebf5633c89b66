package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
)

var _ adapter.ImageProvider = (*ComfyUI)(nil)

// ComfyUI drives a local ComfyUI server. Submission is asynchronous: the
// prompt id is the remote token and /history reports completion.
type ComfyUI struct {
	c        jsonClient
	clientID string
}

func NewComfyUI(endpoint string, hc *http.Client) *ComfyUI {
	return &ComfyUI{c: newJSONClient(model.ProviderComfyUI, endpoint, hc, nil), clientID: "genhub"}
}

func (c *ComfyUI) ID() model.ProviderID { return model.ProviderComfyUI }

type comfyPromptRequest struct {
	Prompt   comfyGraph `json:"prompt"`
	ClientID string     `json:"client_id,omitempty"`
}

type comfyPromptResponse struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

func (c *ComfyUI) SubmitImage(ctx context.Context, checkpoint string, req adapter.ImageRequest) (adapter.Submission, error) {
	graph := buildTxt2ImgGraph(checkpoint, req, "genhub_"+seedOf(req.Params))
	var out comfyPromptResponse
	if err := c.c.do(ctx, http.MethodPost, "/prompt", comfyPromptRequest{Prompt: graph, ClientID: c.clientID}, &out); err != nil {
		return adapter.Submission{}, err
	}
	if len(out.NodeErrors) > 0 {
		return adapter.Submission{}, &domain.UpstreamError{
			Provider:   string(model.ProviderComfyUI),
			StatusCode: http.StatusOK,
			Body:       fmt.Sprintf("workflow rejected: %v", out.NodeErrors),
		}
	}
	if out.PromptID == "" {
		return adapter.Submission{}, &domain.UpstreamError{Provider: string(model.ProviderComfyUI), StatusCode: http.StatusOK, Body: "missing prompt_id"}
	}
	return adapter.Submission{Token: out.PromptID}, nil
}

type comfyHistoryEntry struct {
	Status struct {
		StatusStr string  `json:"status_str"`
		Completed bool    `json:"completed"`
		Messages  [][]any `json:"messages"`
	} `json:"status"`
	Outputs map[string]struct {
		Images []adapter.Artifact `json:"images"`
	} `json:"outputs"`
}

type comfyQueue struct {
	Running [][]any `json:"queue_running"`
	Pending [][]any `json:"queue_pending"`
}

// ImageStatus reads /history/{id}. An empty history means the prompt has not
// finished; /queue then tells queued apart from running.
func (c *ComfyUI) ImageStatus(ctx context.Context, token string) (adapter.RemoteStatus, error) {
	var hist map[string]comfyHistoryEntry
	if err := c.c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(token), nil, &hist); err != nil {
		return adapter.RemoteStatus{}, err
	}
	entry, ok := hist[token]
	if !ok {
		return c.queueState(ctx, token)
	}

	switch {
	case entry.Status.StatusStr == "error":
		return adapter.RemoteStatus{State: adapter.RemoteFailed, Error: comfyErrorMessage(entry)}, nil
	case entry.Status.Completed || entry.Status.StatusStr == "success":
		return adapter.RemoteStatus{State: adapter.RemoteCompleted, Artifacts: collectArtifacts(entry)}, nil
	}
	return adapter.RemoteStatus{State: adapter.RemoteRunning}, nil
}

func (c *ComfyUI) queueState(ctx context.Context, token string) (adapter.RemoteStatus, error) {
	var q comfyQueue
	if err := c.c.do(ctx, http.MethodGet, "/queue", nil, &q); err != nil {
		// Queue introspection is advisory only.
		return adapter.RemoteStatus{State: adapter.RemoteRunning}, nil
	}
	for _, item := range q.Pending {
		if len(item) > 1 && item[1] == token {
			return adapter.RemoteStatus{State: adapter.RemoteQueued}, nil
		}
	}
	return adapter.RemoteStatus{State: adapter.RemoteRunning}, nil
}

// collectArtifacts flattens outputs in node order so results are stable.
func collectArtifacts(e comfyHistoryEntry) []adapter.Artifact {
	nodes := make([]string, 0, len(e.Outputs))
	for id := range e.Outputs {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	var out []adapter.Artifact
	for _, id := range nodes {
		for _, img := range e.Outputs[id].Images {
			if img.Type == "temp" {
				continue
			}
			out = append(out, img)
		}
	}
	return out
}

func comfyErrorMessage(e comfyHistoryEntry) string {
	for _, m := range e.Status.Messages {
		if len(m) < 2 || m[0] != "execution_error" {
			continue
		}
		if detail, ok := m[1].(map[string]any); ok {
			if msg, ok := detail["exception_message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return "comfyui reported an execution error"
}

func (c *ComfyUI) FetchArtifact(ctx context.Context, a adapter.Artifact) ([]byte, string, error) {
	if len(a.Data) > 0 {
		return a.Data, a.ContentType, nil
	}
	q := url.Values{}
	q.Set("filename", a.Filename)
	q.Set("subfolder", a.Subfolder)
	typ := a.Type
	if typ == "" {
		typ = "output"
	}
	q.Set("type", typ)
	return c.c.raw(ctx, "/view?"+q.Encode())
}

// ListModels returns the checkpoints the CheckpointLoaderSimple node accepts.
func (c *ComfyUI) ListModels(ctx context.Context) ([]string, error) {
	var info map[string]struct {
		Input struct {
			Required map[string][]any `json:"required"`
		} `json:"input"`
	}
	if err := c.c.do(ctx, http.MethodGet, "/object_info/CheckpointLoaderSimple", nil, &info); err != nil {
		return nil, err
	}
	node, ok := info["CheckpointLoaderSimple"]
	if !ok {
		return nil, nil
	}
	spec := node.Input.Required["ckpt_name"]
	if len(spec) == 0 {
		return nil, nil
	}
	raw, _ := spec[0].([]any)
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}
