package constants

// ArtifactKind is the kind column of plan_job_artifacts and the {kind} segment of artifact paths.
type ArtifactKind string

const (
	ArtifactPageImage    ArtifactKind = "page_image"
	ArtifactCrop         ArtifactKind = "crop"
	ArtifactDebug        ArtifactKind = "debug"
	ArtifactOCRText      ArtifactKind = "ocr_text"
	ArtifactEmbeddingRef ArtifactKind = "embedding_ref"
)

func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactPageImage, ArtifactCrop, ArtifactDebug, ArtifactOCRText, ArtifactEmbeddingRef:
		return true
	}
	return false
}
