// Package prompt manages the model prompts used by the jobprep workflow.
//
// # Embedded Defaults
//
// Default prompts are embedded at compile time from the defaults/ directory:
//   - defaults/profile.md   - candidate profile extraction
//   - defaults/tailor.md    - résumé tailoring
//   - defaults/validate.md  - résumé review verdict
//   - defaults/interview.md - interview preparation
//
// Each file is a text/template. An optional {{define "system"}} block holds
// the system prompt; the rest of the file is the user prompt.
//
// # Runtime Customization
//
// Users can customize prompts by creating files with the same names in the
// prompts directory (.jobprep/prompts by default). Run 'jobprep init' to
// write the defaults there and 'jobprep init --reset' to restore them.
package prompt
