// Package curriculum holds the catalog data model (grade → board → subject →
// chapter → topic → subtopic → resource) and loads it from YAML on disk.
package curriculum

// Reserved topic keys that always display under fixed names.
const (
	TopicMain    = "main"
	TopicSummary = "summary"
)

// inheritName marks a topic whose display name is the chapter's own name.
const inheritName = "$name"

// Node is one level of the catalog tree. Key is not serialized; it is the
// mapping key the node was declared under.
type Node struct {
	Key       string           `yaml:"-" json:"-" msgpack:"-"`
	Name      string           `yaml:"name" json:"name" msgpack:"name"`
	Subtopics OrderedMap[Node] `yaml:"subtopics" json:"subtopics" msgpack:"subtopics"`
}

// Chapter is the decoded info payload of a chapter.
type Chapter struct {
	Name   string           `yaml:"name" json:"name" msgpack:"name"`
	Topics OrderedMap[Node] `yaml:"topics" json:"topics" msgpack:"topics"`
}

// TopicNodes returns the chapter's topics in declaration order with Key and the
// display Name filled in.
func (c Chapter) TopicNodes() []Node {
	nodes := make([]Node, 0, c.Topics.Len())
	c.Topics.Each(func(key string, n Node) {
		nodes = append(nodes, c.resolve(key, n))
	})
	return nodes
}

// Topic returns a single topic by key.
func (c Chapter) Topic(key string) (Node, bool) {
	n, ok := c.Topics.Get(key)
	if !ok {
		return Node{}, false
	}
	return c.resolve(key, n), true
}

func (c Chapter) resolve(key string, n Node) Node {
	n.Key = key
	if n.Name == "" || n.Name == inheritName {
		n.Name = c.Name
	}
	n.Name = DisplayName(key, n.Name)
	return n
}

// SubtopicNodes returns the node's subtopics in declaration order with Key set.
func (n Node) SubtopicNodes() []Node {
	nodes := make([]Node, 0, n.Subtopics.Len())
	n.Subtopics.Each(func(key string, child Node) {
		child.Key = key
		if child.Name == "" {
			child.Name = key
		}
		nodes = append(nodes, child)
	})
	return nodes
}

// Subtopic returns a single subtopic by key.
func (n Node) Subtopic(key string) (Node, bool) {
	child, ok := n.Subtopics.Get(key)
	if !ok {
		return Node{}, false
	}
	child.Key = key
	if child.Name == "" {
		child.Name = key
	}
	return child, true
}

// DisplayName rewrites the reserved topic keys to their fixed labels.
func DisplayName(key, name string) string {
	switch key {
	case TopicMain:
		return "Introduction"
	case TopicSummary:
		return "Summary"
	default:
		return name
	}
}

// Resource is a single learning resource. It is immutable once decoded.
type Resource struct {
	ID          string            `yaml:"id" json:"id" msgpack:"id"`
	Title       string            `yaml:"title" json:"title" msgpack:"title"`
	Description string            `yaml:"description" json:"description" msgpack:"description"`
	Icon        string            `yaml:"icon" json:"icon" msgpack:"icon"`
	Kind        string            `yaml:"kind" json:"kind" msgpack:"kind"`
	Language    string            `yaml:"lang" json:"lang" msgpack:"lang"`
	Metadata    map[string]string `yaml:"metadata" json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// VideoID returns the embedded video identifier, if the resource carries one.
func (r Resource) VideoID() string {
	return r.Metadata["video_id"]
}

// Author returns the credited author of the resource, if any.
func (r Resource) Author() string {
	return r.Metadata["author"]
}

// Link returns the external link of the resource, if any.
func (r Resource) Link() string {
	return r.Metadata["link"]
}

// ResourceSet maps a resource-kind code to its ordered resources.
type ResourceSet = OrderedMap[[]Resource]

// ResourceType is one entry of the resource-kind reference data.
type ResourceType struct {
	Label string `yaml:"label" json:"label" msgpack:"label"`
	Kind  string `yaml:"kind" json:"kind" msgpack:"kind"`
}

// ResourceTypes maps resource-kind codes to their reference entry, in the
// order headers must be rendered.
type ResourceTypes = OrderedMap[ResourceType]

// Entry is a named listing item (subject, chapter).
type Entry struct {
	Name string `yaml:"name" json:"name" msgpack:"name"`
}

// GradeList is the top-of-catalog listing of grades and the boards offering them.
type GradeList struct {
	Grades      []string            `json:"grades" msgpack:"grades"`
	GradeBoards map[string][]string `json:"grade_boards" msgpack:"grade_boards"`
}
