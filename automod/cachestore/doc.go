// Component for caching string values with an expiry, namespaced by a "name".
//
// Includes an interface and implementations using redis and in-process memory.
//
// The Telegram transport uses this for two things: remembering the text of recently seen messages (so an edit can be reported along with the original text), and remembering the platform file ID of an uploaded media asset (so the asset is only uploaded once).
package cachestore
