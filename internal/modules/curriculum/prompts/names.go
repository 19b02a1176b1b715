package prompts

type PromptName string

const (
	PromptStructureDetect PromptName = "structure_detect"
	PromptPhilosophyAlign PromptName = "philosophy_align"
	PromptCourseGenerate  PromptName = "course_generate"
	PromptTopicGenerate   PromptName = "topic_generate"
)
