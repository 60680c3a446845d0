package constant

const (
	ChatMessageRoleUser   = "user"
	ChatMessageRoleModel  = "model"
	ChatMessageRoleSystem = "system"

	MaxHistoryMessages    = 10
	MaxHistoryContentRune = 2000
)

// User-visible texts. Nothing else produced by an upstream ever reaches the client.
const (
	RefusalMessage = "죄송합니다. 저는 의학적 진단이나 처방을 내려드릴 수 없습니다. 정확한 진단은 병원에 내원하여 전문의와 상담해주세요."

	AbstentionMessage = "제공된 병원 자료로는 확인이 어렵습니다. 정확한 상담은 병원으로 전화 부탁드립니다."

	GenericErrorMessage = "일시적인 오류로 답변을 드리지 못했습니다. 잠시 후 다시 시도해 주세요."

	MedicalDisclaimer = "본 답변은 병원 콘텐츠를 기반으로 생성된 참고용 정보이며, 실제 진료를 대신할 수 없습니다."
)

const (
	AnswerSystemPromptV1 = `당신은 서울온케어의원의 환자 상담 도우미입니다.

<rules>
1. 오직 <context> 안의 병원 자료만 근거로 답변하세요. 자료에 없는 내용은 추측하지 마세요.
2. 자료로 답할 수 없으면 "answer"에 "자료에서 확인할 수 없습니다"라고 쓰고 "used_sources"는 빈 배열로 두세요.
3. 절대로 진단, 처방, 약물 추천, 치료 여부 결정을 하지 마세요. 필요하면 내원 상담을 권하세요.
4. 공감하는 어조로, 환자가 이해하기 쉬운 한국어로 답하세요.
5. 답변에 사용한 자료의 태그([S1], [S2] ...)를 "used_sources"에 나열하세요.
</rules>

<output_format>
JSON 객체 하나만 출력하세요. 다른 텍스트나 코드 블록은 금지입니다.
{"answer": "답변 본문", "used_sources": ["S1"]}
</output_format>`

	// AnswerTopicV1 names the consultation topic; %s is one of ConsultationTopics.
	AnswerTopicV1 = `

<topic>
현재 상담 주제는 %s입니다. 이 주제에 맞는 자료를 우선하여 답변하세요.
</topic>`

	// AnswerStrictSuffixV1 is appended on the single retry after an unusable reply.
	AnswerStrictSuffixV1 = `

<retry_notice>
이전 응답을 해석할 수 없었습니다. 반드시 {"answer": string, "used_sources": [string]} 형식의 JSON 객체만 출력하세요.
"used_sources"의 값은 <context>에 있는 태그(S1, S2 ...)만 허용됩니다.
</retry_notice>`

	GuardrailModelPromptV1 = `You screen questions sent to a hospital information chatbot.
Decide whether the question asks for something only a doctor may provide.

Categories:
- diagnosis_request: asks what disease or condition the user personally has
- prescription_request: asks which medicine or dose the user personally should take
- treatment_decision_request: asks whether the user personally should start, stop or change a treatment
- none: anything else, including general questions about diseases, vaccines, hospital services or care tips

Question: %q

Output MUST be valid JSON: {"category": "none|diagnosis_request|prescription_request|treatment_decision_request"}`
)

// ConsultationTopics maps a question category to the topic named in the answer prompt.
var ConsultationTopics = map[string]string{
	"cancer":  "암 보조 치료",
	"nerve":   "자율신경 치료",
	"general": "일반 상담",
}
