// Package extractor converts raw file content into tagged source units.
//
// Tagging uses lexical heuristics over exported declarations: the
// use-prefix convention for hooks, PascalCase plus JSX evidence for
// components, store-creation calls and Store suffixes for stores, and
// util for everything else that is exported. No language parser is
// involved, so extraction cannot hard-fail; files with no recognizable
// structure degrade to a single raw unit covering the whole file.
package extractor
