// Package events defines the events a screening session sends to its
// client and their JSON wire form.
//
//   - TaskStarted (task_started): an audio frame was accepted, carries the
//     id of the transcription job.
//   - Processing (processing): the patient turn is being answered.
//   - UserTranscript (user_transcript): what the patient said, or a
//     placeholder when nothing could be transcribed.
//   - AIResponse (ai_response): the interviewer reply text.
//   - AIAudio (ai_audio): synthesized audio of the reply with the same
//     sequence number.
//   - AssessmentComplete (assessment_complete): the final report.
//   - Error (error): a request could not be served.
//   - Pong (pong): answer to a ping.
package events
