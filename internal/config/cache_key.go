package config

import (
	"fmt"
)

// Term and class names are free text, so they are quoted inside keys. A ':'
// in either part can then never shift the key's segments.
type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ClassViewKey returns the cache key for a class's rendered weekly grid.
func (r *CacheKeyStruct) ClassViewKey(term, className string) string {
	return fmt.Sprintf("timetable:%q:class:%q:view", term, className)
}

// ClassViewGenerationKey holds a counter bumped on every committed change to
// the class. A grid built before the bump must not be cached.
func (r *CacheKeyStruct) ClassViewGenerationKey(term, className string) string {
	return fmt.Sprintf("timetable:%q:class:%q:gen", term, className)
}

// ClassUpdatesChannel returns the Redis PubSub channel a class's timetable
// changes are announced on.
func (r *CacheKeyStruct) ClassUpdatesChannel(term, className string) string {
	return fmt.Sprintf("timetable:%q:class:%q:updates", term, className)
}

// ClassUpdatesPattern matches every class update channel, for PSubscribe.
func (r *CacheKeyStruct) ClassUpdatesPattern() string {
	return "timetable:*:class:*:updates"
}

// TeacherLockKey is the advisory lock key serializing writers of one teacher.
func (r *CacheKeyStruct) TeacherLockKey(term string, teacherID int) string {
	return fmt.Sprintf("timetable:%q:teacher:%d", term, teacherID)
}

// SlotLockKey is the advisory lock key for one (class, period number) slot.
func (r *CacheKeyStruct) SlotLockKey(term, className string, periodNumber int) string {
	return fmt.Sprintf("timetable:%q:class:%q:period:%d", term, className, periodNumber)
}

var CacheKey = NewCacheKeyStruct()
