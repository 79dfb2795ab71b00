package vision

// extractionPrompt is the fixed instruction sent with every scoreboard
// photo. It pins the exact output shape and mandates null for anything
// not clearly legible, so an unreadable board never turns into a
// fabricated 0-0.
const extractionPrompt = `Look at this photo of a sports scoreboard and extract the displayed information.

Respond with a single JSON object in exactly this shape:
{
  "home_score": <integer or null>,
  "away_score": <integer or null>,
  "period": <string or null>,
  "clock": <string or null>,
  "confidence": <number between 0 and 1>,
  "notes": <string or null>
}

Rules:
- Use null for any field that is not clearly visible or legible. Never guess a score.
- home_score and away_score are the main displayed scores, as non-negative integers.
- period is the displayed period/quarter/half/inning label, verbatim.
- clock is the displayed game clock text, verbatim.
- confidence reflects how certain you are about the extracted values overall.
- If the photo does not show a scoreboard, set both scores to null, explain in notes, and still report your confidence in that judgment.
- notes may mention anything ambiguous (glare, occlusion, multiple boards).`
