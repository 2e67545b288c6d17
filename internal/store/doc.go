// Package store owns the per-course document of tracked assignments, custom
// reminders and ping opt-ins.
//
// The in-memory Document is the source of truth once loaded. Every mutation
// goes through Store.Update, which applies the change and persists the whole
// document while holding the store lock.
package store
