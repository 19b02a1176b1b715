package prompts

const philosophy = `
Optio learning philosophy:
- The process is the goal. Learning is valuable for who the learner is becoming now, not for a future payoff.
- Speak to the learner directly as "you". Never address teachers, parents, or "students" in the third person.
- Use present-focused, growth-oriented language. No grades, points, rankings, deadlines, or competition.
- Favor hands-on projects with real-world meaning over worksheets and tests.
- Offer choice. Learners should be able to take a project in their own direction.`

// RegisterAll registers every curriculum prompt.
func RegisterAll() {
	RegisterSpec(Spec{
		Name:    PromptStructureDetect,
		Version: 1,
		System: `
You analyze an existing course (syllabus, LMS export, or notes) and recover its structure.
Identify the course title, a short description, the ordered modules, the lessons inside each module, and any assignments or tasks.
Only report structure that is present in the material. Do not invent modules.
Return JSON only.`,
		User: `
{{if .ChunkLabel}}This is {{.ChunkLabel}} of a larger course. Report only the structure visible in this part.
{{end}}
SOURCE:
{{.SourceSummary}}

Return a JSON object:
{
  "course": {"title": string, "description": string},
  "modules": [
    {"title": string, "description": string,
     "lessons": [{"title": string, "description": string, "content": string}]}
  ],
  "tasks": [{"title": string, "description": string, "module": string}],
  "curriculum_type": string
}

Rules:
- Keep modules and lessons in source order.
- "module" on a task is the title of the module it belongs to, or empty.
- curriculum_type is one of: syllabus, lms_export, lesson_plan, notes, other.`,
		Validators: []Validator{
			RequireNonEmpty("SourceSummary", func(in Input) string { return in.SourceSummary }),
		},
	})

	RegisterSpec(Spec{
		Name:    PromptPhilosophyAlign,
		Version: 1,
		System: `
You adapt a course structure to a learning philosophy while keeping its subject matter intact.
` + philosophy + `
Return JSON only.`,
		User: `
TRANSFORMATION LEVEL: {{.TransformationLevel}}
{{.LevelGuidance}}
{{if .PreserveStructure}}
PRESERVE STRUCTURE: keep exactly the same modules and lessons in the same order. Only rewrite titles and descriptions.
{{end}}
CURRENT STRUCTURE (JSON):
{{.StructureJSON}}

Return a JSON object:
{
  "course": {"title": string, "description": string},
  "modules": [
    {"title": string, "description": string,
     "lessons": [{"title": string, "description": string}]}
  ],
  "transformation_notes": [string],
  "alignment_score": number between 0 and 1
}

transformation_notes lists the changes you made, one per entry.`,
		Validators: []Validator{
			RequireNonEmpty("StructureJSON", func(in Input) string { return in.StructureJSON }),
		},
	})

	RegisterSpec(Spec{
		Name:    PromptCourseGenerate,
		Version: 1,
		System: `
You turn an aligned course structure into a project-based course.
A course contains projects; a project contains lessons; a lesson contains content steps.
` + philosophy + `
Return JSON only.`,
		User: `
ALIGNED STRUCTURE (JSON):
{{.AlignmentJSON}}
{{template "objectives" .}}
{{template "shape" .}}
{{if .CorrectionNote}}
Your previous answer was rejected: {{.CorrectionNote}}
Fix that and answer again.
{{end}}
{{define "objectives"}}{{if .Objectives}}
LEARNING OBJECTIVES:
{{range $i, $o := .Objectives}}{{inc $i}}. {{$o}}
{{end}}
Create exactly {{len .Objectives}} projects, one per objective.
Set each project's "source_objective" to the objective text exactly as written above.
{{else}}
Create between 4 and 8 projects that together cover the structure.
{{end}}{{end}}
{{define "shape"}}
Return a JSON object:
{
  "course": {"title": string, "description": string},
  "projects": [
    {"title": string, "description": string, "big_idea": string, "source_objective": string,
     "lessons": [
       {"title": string, "description": string,
        "steps": [{"type": "text"|"video"|"file", "title": string, "content": string, "video_url": string}]}
     ]}
  ]
}

Rules:
- Each project has 2 to 5 lessons. Each lesson has 1 to 4 steps.
- Text steps are short markdown written to the learner.
- Only use video steps when you know a stable public URL.{{end}}`,
		Validators: []Validator{
			RequireNonEmpty("AlignmentJSON", func(in Input) string { return in.AlignmentJSON }),
		},
	})

	RegisterSpec(Spec{
		Name:    PromptTopicGenerate,
		Version: 1,
		System: `
You design a project-based course from a topic.
A course contains projects; a project contains lessons; a lesson contains content steps.
` + philosophy + `
Return JSON only.`,
		User: `
TOPIC: {{.Topic}}
{{template "objectives" .}}
{{template "shape" .}}
{{if .CorrectionNote}}
Your previous answer was rejected: {{.CorrectionNote}}
Fix that and answer again.
{{end}}
{{define "objectives"}}{{if .Objectives}}
LEARNING OBJECTIVES:
{{range $i, $o := .Objectives}}{{inc $i}}. {{$o}}
{{end}}
Create exactly {{len .Objectives}} projects, one per objective.
Set each project's "source_objective" to the objective text exactly as written above.
{{else}}
Create between 4 and 8 projects that explore the topic.
{{end}}{{end}}
{{define "shape"}}
Return a JSON object:
{
  "course": {"title": string, "description": string},
  "projects": [
    {"title": string, "description": string, "big_idea": string, "source_objective": string,
     "lessons": [
       {"title": string, "description": string,
        "steps": [{"type": "text"|"video"|"file", "title": string, "content": string, "video_url": string}]}
     ]}
  ]
}

Rules:
- Each project has 2 to 5 lessons. Each lesson has 1 to 4 steps.
- Text steps are short markdown written to the learner.
- Only use video steps when you know a stable public URL.{{end}}`,
		Validators: []Validator{
			RequireNonEmpty("Topic", func(in Input) string { return in.Topic }),
		},
	})
}
