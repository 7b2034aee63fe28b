// Package events defines the realtime wire format and the dashboard event catalog.
//
// Both transports carry JSON objects of the form {"event": name, "data": payload}.
// Push-only streams may use "type" instead of "event". Topic-scoped events encode
// the topic into the name as "eventName:topicId".
package events
