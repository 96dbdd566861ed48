package domain

import (
	"fmt"
	"sort"
)

// Supported node tags. The set mirrors the containment model emitted by the
// metadata reader; each tag has a fixed index arity listed in tagSchema.
const (
	TagProject             Tag = "Project"
	TagDataset             Tag = "Dataset"
	TagScreen              Tag = "Screen"
	TagPlate               Tag = "Plate"
	TagWell                Tag = "Well"
	TagWellSample          Tag = "WellSample"
	TagExperimenter        Tag = "Experimenter"
	TagExperiment          Tag = "Experiment"
	TagInstrument          Tag = "Instrument"
	TagMicroscope          Tag = "Microscope"
	TagObjective           Tag = "Objective"
	TagDetector            Tag = "Detector"
	TagLightSource         Tag = "LightSource"
	TagFilter              Tag = "Filter"
	TagDichroic            Tag = "Dichroic"
	TagImage               Tag = "Image"
	TagPixels              Tag = "Pixels"
	TagChannel             Tag = "Channel"
	TagPlane               Tag = "Plane"
	TagObjectiveSettings   Tag = "ObjectiveSettings"
	TagDetectorSettings    Tag = "DetectorSettings"
	TagLightSourceSettings Tag = "LightSourceSettings"
	TagROI                 Tag = "ROI"
	TagShape               Tag = "Shape"
	TagMapAnnotation       Tag = "MapAnnotation"
)

// tagSchema lists the index names of every supported tag, outermost first.
var tagSchema = map[Tag][]string{
	TagProject:             {"projectIndex"},
	TagDataset:             {"datasetIndex"},
	TagScreen:              {"screenIndex"},
	TagPlate:               {"plateIndex"},
	TagWell:                {"plateIndex", "wellIndex"},
	TagWellSample:          {"plateIndex", "wellIndex", "wellSampleIndex"},
	TagExperimenter:        {"experimenterIndex"},
	TagExperiment:          {"experimentIndex"},
	TagInstrument:          {"instrumentIndex"},
	TagMicroscope:          {"instrumentIndex"},
	TagObjective:           {"instrumentIndex", "objectiveIndex"},
	TagDetector:            {"instrumentIndex", "detectorIndex"},
	TagLightSource:         {"instrumentIndex", "lightSourceIndex"},
	TagFilter:              {"instrumentIndex", "filterIndex"},
	TagDichroic:            {"instrumentIndex", "dichroicIndex"},
	TagImage:               {"imageIndex"},
	TagPixels:              {"imageIndex"},
	TagChannel:             {"imageIndex", "channelIndex"},
	TagPlane:               {"imageIndex", "planeIndex"},
	TagObjectiveSettings:   {"imageIndex"},
	TagDetectorSettings:    {"imageIndex", "channelIndex"},
	TagLightSourceSettings: {"imageIndex", "channelIndex"},
	TagROI:                 {"roiIndex"},
	TagShape:               {"roiIndex", "shapeIndex"},
	TagMapAnnotation:       {"annotationIndex"},
}

// rootTags sit at the top of the containment hierarchy.
var rootTags = map[Tag]struct{}{
	TagProject:      {},
	TagDataset:      {},
	TagScreen:       {},
	TagPlate:        {},
	TagExperimenter: {},
	TagExperiment:   {},
	TagInstrument:   {},
	TagImage:        {},
	TagROI:          {},
}

// settingsTags hang off an image or channel but point at instrument
// components, so their index arity does not reflect their depth.
var settingsTags = map[Tag]struct{}{
	TagObjectiveSettings:   {},
	TagDetectorSettings:    {},
	TagLightSourceSettings: {},
}

// commitTags are the entities whose persisted handles the store returns on commit.
var commitTags = []Tag{TagImage, TagPixels, TagPlate}

// Tags returns every supported tag in lexical order.
func Tags() []Tag {
	out := make([]Tag, 0, len(tagSchema))
	for tag := range tagSchema {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known reports whether tag is part of the schema.
func Known(tag Tag) bool {
	_, ok := tagSchema[tag]
	return ok
}

// IsRootTag reports whether tag is a hierarchy root.
func IsRootTag(tag Tag) bool {
	_, ok := rootTags[tag]
	return ok
}

// IsSettingsTag reports whether tag is a settings-like node.
func IsSettingsTag(tag Tag) bool {
	_, ok := settingsTags[tag]
	return ok
}

// CommitTags returns the tags whose canonical handles are reported on commit.
func CommitTags() []Tag {
	return append([]Tag(nil), commitTags...)
}

// IsCommitTag reports whether handles for tag are returned on commit.
func IsCommitTag(tag Tag) bool {
	for _, t := range commitTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Arity returns the number of indices a tag expects, or -1 when unknown.
func Arity(tag Tag) int {
	names, ok := tagSchema[tag]
	if !ok {
		return -1
	}
	return len(names)
}

// IndexNames maps an index tuple onto the schema's index names for
// diagnostics. Unknown tags and surplus indices fall back to "index<N>".
func IndexNames(tag Tag, indices []int) map[string]int {
	names := tagSchema[tag]
	out := make(map[string]int, len(indices))
	for i, v := range indices {
		if i < len(names) {
			out[names[i]] = v
			continue
		}
		out[fmt.Sprintf("index%d", i)] = v
	}
	return out
}
