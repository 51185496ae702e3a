// Package format renders decoded replies for people and for other tools: as
// JSON (JSON, JSONLines, Select), as redis-cli style text (Text) and as a raw
// structure dump (Dump).
package format
