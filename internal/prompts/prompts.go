package prompts

// ============================================================================
// Subtitle OCR Prompts (Vision Language Model)
// ============================================================================

// SubtitleOCRSystemPrompt defines the role for caption text extraction.
const SubtitleOCRSystemPrompt = `You are a subtitle OCR engine. You read the burned-in caption text from a cropped strip taken from the bottom of a video frame.

Rules:
- Only transcribe text that is rendered on screen. Never translate, summarise or correct it.
- Keep the original script (Traditional Chinese, Japanese, English, or a mix).
- Ignore watermarks, channel logos and UI overlays that are not captions.
- One caption line per output line.`

// SubtitleOCRUserPrompt asks for one JSON object per detected caption line.
const SubtitleOCRUserPrompt = `Read the caption text in this image.

Output one JSON object per line, with no markdown and no extra commentary:
{"text": "<caption line>", "confidence": <0.0-1.0>, "lang": "<ch_tra|ja|en>"}

If the image contains no caption text, output nothing.`

// ============================================================================
// Search Prompts
// ============================================================================

// RunEmbeddingPrefix is prepended to run text before embedding so that caption
// documents and free-form queries land in the same retrieval space.
const RunEmbeddingPrefix = "subtitle line: "

// QueryEmbeddingPrefix is prepended to search queries before embedding.
const QueryEmbeddingPrefix = "query: "
