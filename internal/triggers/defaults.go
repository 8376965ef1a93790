package triggers

const hire = `(?:ищу|ищем|нужен|нужна|требуется|в поиск[еи]|в поисках)`

// Default returns the built-in catalog of IT order categories
func Default() Definition {
	return Definition{
		Categories: []CategoryDef{
			{
				Name: "Backend",
				Patterns: []PatternDef{
					{Name: "python_dev", Pattern: hire + ` (?:опытн[а-я]* )?(?:junior )?(?:python|питон)[.-]? ?(?:разработчик|программист|специалист|developer|engineer|спец)`, Weight: 0.95},
					{Name: "python_role", Pattern: `(?:junior )?(?:python|питон)[.-]? ?(?:разработчик|программист)`, Weight: 0.9},
					{Name: "backend_dev", Pattern: `(?:разработка бэкенда|разработчик на бэк|бэкенд[- ]?разработчик|backend[- ]?разработчик|backend[- ]?developer)`, Weight: 0.92},
					{Name: "fullstack", Pattern: hire + ` full[- ]?stack`, Weight: 0.94},
					{Name: "webhooks", Pattern: `(?:настройка вебхуков|вебхук|webhook)`, Weight: 0.9},
					{Name: "api_integration", Pattern: `(?:интеграция с мессенджерами|интеграция api)`, Weight: 0.91},
					{Name: "api_dev", Pattern: `(?:разработка|разработать|создание|интеграция) (?:[^ ]+ ){0,3}(?:api|rest|graphql|микросервис|backend|бэкенд)`, Weight: 0.92},
					{Name: "mvp", Pattern: `(?:создание прототипа продукта|нужен mvp|создание mvp)`, Weight: 0.88},
					{Name: "crm_automation", Pattern: `автоматизация crm`, Weight: 0.89},
					{Name: "generic_dev", Pattern: `(?:ищу|нужен|требуется) разработчик`, Weight: 0.8},
					{Name: "node_dev", Pattern: hire + ` (?:node\.?js|javascript|js)[.-]? ?(?:разработчик|программист|engineer)`, Weight: 0.94},
					{Name: "chat_bot", Pattern: `(?:чат[- ]?бот|chatbot|телеграм[- ]?бот|telegram ?bot|разработка бота|создание бота)`, Weight: 0.92},
					{Name: "getcourse", Pattern: `(?:getcourse|get course|геткурс)`, Weight: 0.91},
					{Name: "tech_specialist", Pattern: `(?:технический специалист|техспец|тех специалист)`, Weight: 0.85},
					{Name: "database", Pattern: `(?:база данных|базы данных|postgresql|mysql|mongodb)`, Weight: 0.6},
					{Name: "java_dev", Pattern: hire + ` java ?(?:разработчик|программист|developer|engineer)`, Weight: 0.93},
					{Name: "go_dev", Pattern: hire + ` (?:go|golang)[.-]? ?(?:разработчик|программист|developer)`, Weight: 0.92},
				},
			},
			{
				Name: "Frontend",
				Patterns: []PatternDef{
					{Name: "react_dev", Pattern: `(?:react|reactjs)[.-]? ?(?:разработчик|программист|developer|engineer|специалист)`, Weight: 0.95},
					{Name: "vue_dev", Pattern: hire + ` (?:vue|vuejs|vue\.js) ?(?:разработчик|специалист)`, Weight: 0.94},
					{Name: "angular_dev", Pattern: hire + ` angular[.-]? ?(?:разработчик|developer)`, Weight: 0.93},
					{Name: "frontend_dev", Pattern: `(?:фронтенд|frontend)[.-]? ?(?:разработчик|developer|engineer)`, Weight: 0.92},
					{Name: "webflow_tilda", Pattern: `(?:webflow|tilda|тильда)[- /]?(?:разработчик|специалист|спец)|(?:разработка|проект) на (?:webflow|tilda|тильде)`, Weight: 0.93},
					{Name: "figma", Pattern: `(?:специалист figma|дизайнер на figma|figma дизайнер)`, Weight: 0.91},
					{Name: "ux_ui", Pattern: `(?:ux/ui|ui/ux|ux ui) (?:разработчик|специалист|дизайнер)`, Weight: 0.92},
					{Name: "websites", Pattern: `(?:разработчик сайтов|создани[ея] сайта|спеца по сайтам)`, Weight: 0.9},
				},
			},
			{
				Name: "Mobile",
				Patterns: []PatternDef{
					{Name: "flutter", Pattern: `(?:flutter|flutterflow)`, Weight: 0.9},
					{Name: "react_native", Pattern: `react ?native`, Weight: 0.94},
					{Name: "ios_dev", Pattern: `(?:ios|swift)[- ]?(?:разработчик|developer|программист)`, Weight: 0.93},
					{Name: "android_dev", Pattern: `(?:android|kotlin)[- ]?(?:разработчик|developer|программист)`, Weight: 0.93},
					{Name: "mobile_app", Pattern: `(?:мобильного приложения|мобильное приложение|mobile app|мобилк[аеи])`, Weight: 0.9},
				},
			},
			{
				Name: "AI/ML",
				Patterns: []PatternDef{
					{Name: "ai_engineer", Pattern: hire + ` (?:ai|ии)[- ]?(?:инженер|engineer|специалист)|консультант по (?:ai|ии)`, Weight: 0.93},
					{Name: "prompt_engineer", Pattern: `(?:prompt engineer|промпт[- ]?инженер|промптовик|специалист по промпт)`, Weight: 0.92},
					{Name: "prompt_writing", Pattern: `(?:написать промпт|оптимизация промптов)`, Weight: 0.88},
					{Name: "gpt_integration", Pattern: `(?:интеграция|подключение|подключить) (?:[^ ]+ ){0,3}(?:chatgpt|gpt-?4|gpt|openai)`, Weight: 0.9},
					{Name: "automation", Pattern: `(?:нужна автоматизация|нужно автоматизировать|специалист по автоматизации|автоматизация бизнес[- ]?процессов)`, Weight: 0.9},
					{Name: "neural_networks", Pattern: `(?:нейросет[а-я]*|neural network|machine learning)`, Weight: 0.85},
					{Name: "ai_assistant", Pattern: `(?:ai|ии)[- ]?(?:ассистент|агент|помощник|бот)`, Weight: 0.91},
				},
			},
			{
				Name: "Low-Code",
				Patterns: []PatternDef{
					{Name: "bubble", Pattern: `(?:bubble\.io|на bubble|специалист bubble|специалист по bubble)`, Weight: 0.94},
					{Name: "zapier_make", Pattern: `(?:zapier|n8n|(?:проект|разработка|сценари[йи]) на make)`, Weight: 0.92},
					{Name: "nocode_platforms", Pattern: `(?:airtable|glide|adalo|no[- ]?code|ноу[- ]?код)`, Weight: 0.91},
					{Name: "google_sheets", Pattern: `(?:автоматизация отчетов в google sheets|google sheets автоматизация)`, Weight: 0.88},
				},
			},
			{
				Name: "Other",
				Patterns: []PatternDef{
					{Name: "one_c", Pattern: `(?:программист 1[сc]|разработчик 1[сc]|1[сc] (?:разработчик|программист)|на 1[сc])`, Weight: 0.93},
					{Name: "shopify", Pattern: `shopify`, Weight: 0.93},
					{Name: "marketplace", Pattern: `(?:маркетплейс|marketplace|яндекс ?маркет|ozon|wildberries) (?:[^ ]+ ){0,3}(?:интеграция|разработка|api)`, Weight: 0.9},
				},
			},
		},
		Exclusions: []string{
			`(?:продам|куплю|продаю)`,
			`(?:услуга по уборке|заказ еды|доставка еды)`,
			`(?:spam|спам|реклама)`,
			`(?:смешная картинка|давай поговорим о жизни)`,
			`(?:ищу работу|ищу подработку|рассмотрю предложения|моё резюме|мое резюме)`,
		},
	}
}
