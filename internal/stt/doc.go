// Package stt uploads finished recordings to the transcription service.
// Each submission is a two-part multipart POST (model identifier plus the
// audio file) authenticated with an API key header. Size gates reject empty
// and oversize containers before any network traffic, failures retry with
// exponential backoff, and a semaphore bounds concurrent uploads.
package stt
