package curriculum

// Topic represents a curriculum topic loaded from YAML.
type Topic struct {
	ID                 string              `yaml:"id"`
	Name               string              `yaml:"name"`
	SubjectID          string              `yaml:"subject_id"`
	Description        string              `yaml:"description"`
	Keywords           []string            `yaml:"keywords"`
	Tasks              Tasks               `yaml:"tasks"`
	LearningObjectives []LearningObjective `yaml:"learning_objectives"`
}

// Tasks holds one practice task per difficulty level.
type Tasks struct {
	Easy   string `yaml:"easy"`
	Medium string `yaml:"medium"`
	Hard   string `yaml:"hard"`
}

// LearningObjective represents a learning objective within a topic.
type LearningObjective struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}
