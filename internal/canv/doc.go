// Package canv reads and writes the canonic video pair: a .canv zip
// holding per-frame camera metadata and a linked .ims zip holding one
// JPEG per frame. Both archives carry an index.json (format version,
// frame count) and a proc.json command history; frames are numbered
// members addressed by frame index.
//
// Readers give random access by index. Writers are strictly
// sequential: frames must be appended in increasing index order, and
// Close records the count actually committed so an interrupted run
// still leaves a structurally valid, truncated pair behind.
package canv
