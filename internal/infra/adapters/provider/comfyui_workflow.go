package provider

import (
	"strconv"

	"genhub/internal/domain/ports/adapter"
)

// comfyNode is one entry of a ComfyUI API-format prompt graph. Inputs hold
// either literal values or [nodeID, outputIndex] links.
type comfyNode struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

type comfyGraph map[string]comfyNode

const (
	nodeCheckpoint = "4"
	nodeLatent     = "5"
	nodePositive   = "6"
	nodeNegative   = "7"
	nodeSampler    = "3"
	nodeDecode     = "8"
	nodeSave       = "9"
)

func link(node string, out int) []any { return []any{node, out} }

// buildTxt2ImgGraph renders the stock text-to-image pipeline:
// checkpoint -> clip encode (pos/neg) -> empty latent -> ksampler -> vae decode -> save.
func buildTxt2ImgGraph(checkpoint string, req adapter.ImageRequest, filenamePrefix string) comfyGraph {
	p := req.Params
	scheduler := p.Scheduler
	if scheduler == "" {
		scheduler = "normal"
	}
	return comfyGraph{
		nodeCheckpoint: {
			ClassType: "CheckpointLoaderSimple",
			Inputs:    map[string]any{"ckpt_name": checkpoint},
		},
		nodeLatent: {
			ClassType: "EmptyLatentImage",
			Inputs: map[string]any{
				"width":      p.Width,
				"height":     p.Height,
				"batch_size": p.BatchSize,
			},
		},
		nodePositive: {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": req.Prompt, "clip": link(nodeCheckpoint, 1)},
		},
		nodeNegative: {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"text": req.NegativePrompt, "clip": link(nodeCheckpoint, 1)},
		},
		nodeSampler: {
			ClassType: "KSampler",
			Inputs: map[string]any{
				"seed":         p.Seed,
				"steps":        p.Steps,
				"cfg":          p.CFGScale,
				"sampler_name": p.Sampler,
				"scheduler":    scheduler,
				"denoise":      1.0,
				"model":        link(nodeCheckpoint, 0),
				"positive":     link(nodePositive, 0),
				"negative":     link(nodeNegative, 0),
				"latent_image": link(nodeLatent, 0),
			},
		},
		nodeDecode: {
			ClassType: "VAEDecode",
			Inputs:    map[string]any{"samples": link(nodeSampler, 0), "vae": link(nodeCheckpoint, 2)},
		},
		nodeSave: {
			ClassType: "SaveImage",
			Inputs:    map[string]any{"filename_prefix": filenamePrefix, "images": link(nodeDecode, 0)},
		},
	}
}

// seedOf is used in logs and filenames.
func seedOf(p adapter.ImageParams) string { return strconv.FormatInt(p.Seed, 10) }
