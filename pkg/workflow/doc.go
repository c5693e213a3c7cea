// Package workflow prepares a job application with a language model.
//
// A run threads a single State through five steps:
//
//	research_job -> build_profile -> tailor_resume -> validate_resume -> prepare_interview
//
// validate_resume routes back to tailor_resume while the reviewer rejects the
// draft and the retry budget lasts. The run pauses before prepare_interview so
// a person can approve, edit or reject the tailored résumé; Decide resumes it.
// Every step is checkpointed by thread id through pkg/graph.
package workflow
