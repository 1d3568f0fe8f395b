package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding a user's active token ID.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// ExamPayloadKey returns the cache key for an exam's student-facing questions.
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamAnswerKey returns the cache key for an exam's answer key hash.
func (r *CacheKeyStruct) ExamAnswerKey(examID string) string {
	return fmt.Sprintf("exam:%s:key", examID)
}

// ExamMarksKey returns the cache key for an exam's per-question marks hash.
func (r *CacheKeyStruct) ExamMarksKey(examID string) string {
	return fmt.Sprintf("exam:%s:marks", examID)
}

// AttemptSubmitLockKey returns the key guarding a student's submission of an exam.
func (r *CacheKeyStruct) AttemptSubmitLockKey(examID string, studentID int) string {
	return fmt.Sprintf("student:%d:exam:%s:submit_lock", studentID, examID)
}

// RateLimitKey returns the counter key for a client IP in the given window.
func (r *CacheKeyStruct) RateLimitKey(scope, ip string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, ip, window)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
