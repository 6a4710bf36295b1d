package flow

// Outbound conversational copy. Phone numbers are the affiliation office's public lines.
const (
	MsgWelcomeMenu = "👋 Hola, soy el asistente de Los Capuchinos BIO.\nElegí una opción:\n1️⃣ Afiliaciones (Planes)\n2️⃣ Urgencias 24 hs\n3️⃣ Hablar con un asesor"

	MsgUrgentInterrupt = "🚨 Para atención inmediata 24 hs: 351 531 1114.\nSi querés, decime tu nombre y zona y te acompañamos."
	MsgUrgentMenu      = "🚨 Para atención inmediata 24 hs: 351 531 1114.\nSi querés, decime tu nombre y zona."
	MsgHumanAdvisor    = "Perfecto. Un asesor te contactará a la brevedad.\n📱 Afiliaciones: 351 531 1115\n🚨 Urgencias 24 hs: 351 531 1114"

	MsgCoverageTarget = "Perfecto 😊 ¿La cobertura es para:\n1️⃣ Vos\n2️⃣ Tu familia\n3️⃣ Persona mayor?"
	MsgAskPriority    = "¿Qué valorás más?\n1) Tranquilidad de costos\n2) Acompañamiento\n3) Enfoque ecológico"
	MsgAskFamily      = "Genial 💚 ¿Cuántas personas serían y en qué zona estás?"
	MsgAskElder       = "Gracias. ¿La persona es mayor de 75? (Sí/No)"

	MsgPlanIndividual = "Por lo que me contás, te conviene el Plan Individual BIO.\n" + msgAskData
	MsgPlanFamily     = "Por lo que me contás, te conviene el Plan Familiar BIO.\n" + msgAskData
	MsgPlanElder      = "Por lo que me contás, te conviene el Plan Mayor BIO.\n" + msgAskData

	MsgClosing = "¡Gracias! 🙌 Un asesor se va a comunicar a la brevedad.\n📱 Afiliaciones: 351 531 1115\n🚨 Urgencias 24 hs: 351 531 1114"

	MsgMenuFallback = "¿Qué necesitás?\n1️⃣ Afiliaciones (Planes)\n2️⃣ Urgencias 24 hs\n3️⃣ Hablar con un asesor"

	msgAskData = "Para avanzar: Nombre completo, DNI y fecha de nacimiento (en un solo mensaje)."
)
