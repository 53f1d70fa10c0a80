package generation

import (
	"context"

	"github.com/lucentmedia/genstudio/internal/extjob"
)

// Workflow kinds exposed by the API.
const (
	KindPortrait  = "portrait"
	KindImageEdit = "image_edit"
)

// Credit costs per workflow. Charging is all-or-nothing: a failed workflow
// refunds the full cost regardless of which step failed.
const (
	PortraitCost  int64 = 10
	ImageEditCost int64 = 5
)

// ImageGenerator produces one image synchronously.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (data []byte, contentType string, err error)
}

// AnimatorFactory binds a prompt and source image to an image-to-video job.
type AnimatorFactory func(prompt string, imageURL string) extjob.Operation

// EditorFactory binds a prompt and source images to an image edit job.
type EditorFactory func(prompt string, imageURLs []string) extjob.Operation

// NewPortraitWorkflow builds the two-step portrait workflow: a synchronous
// image generation followed by an asynchronous animation of that image.
func NewPortraitWorkflow(generator ImageGenerator, animator AnimatorFactory, poller *extjob.Poller) Workflow {
	imageStep := NewSyncStep("generate_portrait", func(ctx context.Context, input StepInput) (StepOutput, error) {
		data, contentType, generateError := generator.Generate(ctx, input.Prompt)
		if generateError != nil {
			return StepOutput{}, generateError
		}
		return StepOutput{Data: data, ContentType: contentType}, nil
	})

	animateStep := NewAsyncStep("animate_portrait", func(input StepInput) extjob.Operation {
		sourceURL := ""
		if len(input.ArtifactURLs) > 0 {
			sourceURL = input.ArtifactURLs[len(input.ArtifactURLs)-1]
		}
		return animator(input.Prompt, sourceURL)
	}, poller, "video/mp4")

	return Workflow{
		Kind:  KindPortrait,
		Cost:  PortraitCost,
		Steps: []Step{imageStep, animateStep},
	}
}

// NewImageEditWorkflow builds the single-step image edit workflow.
func NewImageEditWorkflow(editor EditorFactory, sourceImageURLs []string, poller *extjob.Poller) Workflow {
	editStep := NewAsyncStep("edit_image", func(input StepInput) extjob.Operation {
		return editor(input.Prompt, sourceImageURLs)
	}, poller, "image/png")

	return Workflow{
		Kind:  KindImageEdit,
		Cost:  ImageEditCost,
		Steps: []Step{editStep},
	}
}
